package optimize

import (
	"math"
	"sort"
)

// HeatmapData groups sample results by two parameters' values for charting,
// averaging the chosen metric within each (x, y) cell. Mirrors optimizer.py's
// get_heatmap_data.
type HeatmapData struct {
	ParamX    string
	ParamY    string
	XValues   []float64
	YValues   []float64
	Data      []HeatmapPoint
	BestX     float64
	BestY     float64
	BestValue float64
	HasBest   bool
	Metric    string
}

// HeatmapPoint is one (x, y) cell's averaged metric value.
type HeatmapPoint struct {
	X     float64
	Y     float64
	Value float64
}

type cellKey struct{ x, y float64 }

// GetHeatmapData groups results by paramX/paramY and averages metric within
// each cell, tracking the cell with the highest average as the best point.
func GetHeatmapData(results []SampleResult, paramX, paramY, metric string) HeatmapData {
	grouped := make(map[cellKey][]float64)
	xSet := make(map[float64]bool)
	ySet := make(map[float64]bool)

	for _, r := range results {
		if r.Error != "" {
			continue
		}
		x, hasX := r.Parameters[paramX]
		y, hasY := r.Parameters[paramY]
		if !hasX || !hasY {
			continue
		}
		grouped[cellKey{x, y}] = append(grouped[cellKey{x, y}], r.Metrics[metric])
		xSet[x] = true
		ySet[y] = true
	}

	out := HeatmapData{ParamX: paramX, ParamY: paramY, Metric: metric}
	for x := range xSet {
		out.XValues = append(out.XValues, x)
	}
	for y := range ySet {
		out.YValues = append(out.YValues, y)
	}
	sort.Float64s(out.XValues)
	sort.Float64s(out.YValues)

	bestValue := math.Inf(-1)
	for cell, values := range grouped {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		avg := roundTo(sum/float64(len(values)), 4)
		out.Data = append(out.Data, HeatmapPoint{X: cell.x, Y: cell.y, Value: avg})
		if avg > bestValue {
			bestValue = avg
			out.BestX = cell.x
			out.BestY = cell.y
			out.HasBest = true
		}
	}
	if out.HasBest {
		out.BestValue = roundTo(bestValue, 4)
	}

	sort.Slice(out.Data, func(i, j int) bool {
		if out.Data[i].X != out.Data[j].X {
			return out.Data[i].X < out.Data[j].X
		}
		return out.Data[i].Y < out.Data[j].Y
	})

	return out
}
