package main

import (
	"log"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mazznoer/colorgrad"
	"golang.org/x/image/colornames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ocfmining/go-coalition-sim/sim"
)

// plotScenario draws the per-scenario time-series figures from the first
// run's history plus a cross-run price trace.
func plotScenario(dir string, agg sim.AggregateResult) {
	if len(agg.Runs) == 0 {
		return
	}
	history := agg.Runs[0].Snapshots

	scatterOf := func(data plotter.XYs) *plotter.Scatter {
		s, err := plotter.NewScatter(data)
		if err != nil {
			panic(err)
		}
		s.Radius = 1
		s.Shape = draw.CircleGlyph{}
		return s
	}

	plotSystemUtility := func() {
		p := plot.New()
		data := plotter.XYs{}
		for _, s := range history {
			data = append(data, plotter.XY{X: s.Time, Y: s.SystemUtility})
		}
		p.Add(scatterOf(data))
		p.Save(800, 300, filepath.Join(dir, "system_utility.png"))
	}
	plotSystemUtility()

	plotPrice := func() {
		p := plot.New()
		data := plotter.XYs{}
		for _, s := range history {
			data = append(data, plotter.XY{X: s.Time, Y: s.ECPPrice})
		}
		p.Add(scatterOf(data))
		p.Y.Min = 0
		p.Save(800, 300, filepath.Join(dir, "ecp_price.png"))
	}
	plotPrice()

	plotCoalitions := func() {
		p := plot.New()
		sizes := plotter.XYs{}
		counts := plotter.XYs{}
		for _, s := range history {
			sizes = append(sizes, plotter.XY{X: s.Time, Y: s.AvgCoalitionSize})
			counts = append(counts, plotter.XY{X: s.Time, Y: float64(s.NumCoalitions)})
		}
		sizeScatter := scatterOf(sizes)
		sizeScatter.Color = colornames.Blue
		p.Add(sizeScatter)
		p.Legend.Add("avg size", sizeScatter)
		countScatter := scatterOf(counts)
		countScatter.Color = colornames.Red
		p.Add(countScatter)
		p.Legend.Add("count", countScatter)
		p.Y.Min = 0
		p.Save(800, 300, filepath.Join(dir, "coalitions.png"))
	}
	plotCoalitions()

	plotBandwidth := func() {
		p := plot.New()
		data := plotter.XYs{}
		for _, s := range history {
			data = append(data, plotter.XY{X: s.Time, Y: s.BandwidthKB})
		}
		p.Add(scatterOf(data))
		p.Y.Min = 0
		p.Save(800, 300, filepath.Join(dir, "bandwidth.png"))
	}
	plotBandwidth()

	plotBlocks := func() {
		p := plot.New()
		buckets := map[int]int{}
		for _, run := range agg.Runs {
			for i := 1; i < len(run.Snapshots); i++ {
				found := run.Snapshots[i].BlocksFound - run.Snapshots[i-1].BlocksFound
				buckets[int(run.Snapshots[i].Time)] += found
			}
		}
		if len(buckets) == 0 {
			return
		}
		data := plotter.XYs{}
		for k, v := range buckets {
			data = append(data, plotter.XY{X: float64(k), Y: float64(v)})
		}
		hist, err := plotter.NewHistogram(data, len(buckets))
		if err != nil {
			panic(err)
		}
		p.Add(hist)
		p.Save(800, 300, filepath.Join(dir, "block_times.png"))
	}
	plotBlocks()
}

// plotSweep draws the headline metrics against the swept value.
func plotSweep(dir string, result sim.SweepResult) {
	plotMetric := func(name string, pick func(sim.AggregateResult) float64) {
		p := plot.New()
		data := plotter.XYs{}
		for _, pt := range result.Points {
			if pt.Err != "" {
				continue
			}
			data = append(data, plotter.XY{X: pt.Value, Y: pick(pt.Result)})
		}
		if len(data) == 0 {
			return
		}
		s, err := plotter.NewScatter(data)
		if err != nil {
			panic(err)
		}
		s.Radius = 2
		s.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.X.Label.Text = string(result.Param)
		p.Save(800, 300, filepath.Join(dir, name))
	}

	plotMetric("ecp_utility.png", func(a sim.AggregateResult) float64 { return a.ECPUtility.Mean })
	plotMetric("system_utility.png", func(a sim.AggregateResult) float64 { return a.SystemUtility.Mean })
	plotMetric("blocks_found.png", func(a sim.AggregateResult) float64 { return a.BlocksFound })
}

// drawMembershipTimeline paints a coalition-membership heat strip: one row
// per snapshot, one column per coalition slot, cell intensity by member
// count.
func drawMembershipTimeline(filename string, run sim.RunResult) {
	if len(run.Snapshots) == 0 {
		return
	}

	maxCoalitions := 0
	maxMembers := 1
	for _, s := range run.Snapshots {
		if len(s.MemberCounts) > maxCoalitions {
			maxCoalitions = len(s.MemberCounts)
		}
		for _, n := range s.MemberCounts {
			if n > maxMembers {
				maxMembers = n
			}
		}
	}
	if maxCoalitions == 0 {
		return
	}

	c := gg.NewContext(800, 400)
	marginX, marginY := c.Width()/100, c.Width()/100

	c.Push()
	c.SetColor(colornames.White)
	c.DrawRectangle(0, 0, float64(c.Width()), float64(c.Height()))
	c.Fill()
	c.Stroke()
	c.Pop()

	grad := colorgrad.Viridis()
	lastColor := colorful.Color{}

	cellW := float64(c.Width()-2*marginX) / float64(maxCoalitions)
	cellH := float64(c.Height()-2*marginY) / float64(len(run.Snapshots))

	for row, s := range run.Snapshots {
		y := float64(marginY) + float64(row)*cellH
		for col, n := range s.MemberCounts {
			if n == 0 {
				continue
			}
			clr := grad.At(float64(n) / float64(maxMembers))
			if clr == lastColor {
				// keep adjacent cells distinguishable
				clr.R += 1.0 / 255
			}
			lastColor = clr

			c.Push()
			c.SetColor(clr)
			x := float64(marginX) + float64(col)*cellW
			c.DrawRectangle(x, y, cellW, cellH)
			c.Fill()
			c.Stroke()
			c.Pop()
		}
	}

	if err := c.SavePNG(filename); err != nil {
		log.Fatalln("save png errored", err)
	}
}
