package sim

// Coalition formation: miners repeatedly pick the best of four moves until a
// full pass changes nothing or the iteration cap hits.

type strategy int

const (
	strategyStay strategy = iota
	strategyMerge
	strategySplit
	strategyLeave
)

func (s strategy) String() string {
	switch s {
	case strategyMerge:
		return "MERGE"
	case strategySplit:
		return "SPLIT"
	case strategyLeave:
		return "LEAVE"
	default:
		return "STAY"
	}
}

// runFormation plays the formation game. Every iteration visits the miners
// in a fresh random order so no miner systematically moves first, and each
// miner takes the move that beats its current utility by at least the
// convergence epsilon.
func (e *Engine) runFormation() {
	maxCoalitions := e.cfg.Scenario.MaxCoalitions
	if maxCoalitions == 0 {
		return
	}
	eps := e.cfg.FormationEpsilon

	for iter := 0; iter < e.cfg.FormationMaxIterations; iter++ {
		changed := false

		order := make([]*Miner, len(e.miners))
		for i, j := range e.rng.Perm(len(e.miners)) {
			order[i] = e.miners[j]
		}

		for _, m := range order {
			best := strategyStay
			bestUtility := m.TotalUtility()
			var target *Coalition

			if m.MembershipCount() < maxCoalitions {
				for _, c := range e.coalitions {
					if m.InCoalition(c) || !c.Admits(m) {
						continue
					}
					if u := m.EvaluateMerge(c); u > bestUtility+eps {
						best, bestUtility, target = strategyMerge, u, c
					}
				}
				if u := m.EvaluateSplit(); u > bestUtility+eps {
					best, bestUtility, target = strategySplit, u, nil
				}
			}
			for _, c := range m.Memberships() {
				if u := m.EvaluateLeave(c); u > bestUtility+eps {
					best, bestUtility, target = strategyLeave, u, c
				}
			}

			switch best {
			case strategyMerge:
				if target.AddMember(m) {
					m.Join(target)
					changed = true
				}
			case strategySplit:
				solo := NewCoalition(e.nextCoalitionID, m, &e.cfg)
				e.nextCoalitionID++
				e.coalitions = append(e.coalitions, solo)
				m.Join(solo)
				changed = true
			case strategyLeave:
				target.RemoveMember(m)
				m.Leave(target)
				changed = true
				if target.Size() == 0 {
					e.dropCoalition(target)
				}
			}
		}

		if !changed {
			break
		}
	}

	if e.provider != nil && e.cfg.Scenario.ECPOptimization {
		e.provider.UpdateMembership(e.coalitions)
	}
}

func (e *Engine) dropCoalition(target *Coalition) {
	for i, c := range e.coalitions {
		if c.ID == target.ID {
			e.coalitions = append(e.coalitions[:i], e.coalitions[i+1:]...)
			return
		}
	}
}
