package stats

import "slices"

type PlotPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// AveragePlot averages the series position by position. Series that run out
// drop from later averages.
func AveragePlot(series [][]float64, startIndex, step int) []PlotPoint {
	if step <= 0 {
		step = 1
	}
	longest := 0
	for _, s := range series {
		longest = max(longest, len(s))
	}
	points := make([]PlotPoint, 0, longest)
	for i := 0; i < longest; i++ {
		var sum float64
		var n int
		for _, s := range series {
			if i < len(s) {
				sum += s[i]
				n++
			}
		}
		points = append(points, PlotPoint{Index: startIndex + i*step, Value: sum / float64(n)})
	}
	return points
}

// MaxPlot emits the peak of each series.
func MaxPlot(series [][]float64, startIndex, step int) []PlotPoint {
	if step <= 0 {
		step = 1
	}
	points := make([]PlotPoint, 0, len(series))
	index := startIndex
	for _, s := range series {
		if len(s) == 0 {
			continue
		}
		points = append(points, PlotPoint{Index: index, Value: slices.Max(s)})
		index += step
	}
	return points
}
