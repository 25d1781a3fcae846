package synthetic

import (
	"math/rand/v2"
	"sync"

	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

// HistoryLabels are the fixed period names of every generated series.
var HistoryLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}

type seriesSpec struct {
	metric   models.MetricName
	label    string
	fallback float64
	variance float64
	decimals int
}

var series = []seriesSpec{
	{metric: models.MetricLCP, label: "LCP (seconds)", fallback: 3.0, variance: 0.2, decimals: 1},
	{metric: models.MetricFID, label: "FID (milliseconds)", fallback: 100, variance: 10, decimals: 0},
	{metric: models.MetricCLS, label: "CLS", fallback: 0.15, variance: 0.02, decimals: 2},
	{metric: models.MetricTTI, label: "TTI (seconds)", fallback: 5.0, variance: 0.3, decimals: 1},
}

// Generator fabricates trend lines. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator() *Generator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64())
}

func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// GenerateHistory builds an "improving over time" series per tracked metric,
// anchored to the report's current values. Metrics missing from the report
// are anchored to a fixed fallback. The data is fabricated, not measured.
func (g *Generator) GenerateHistory(report *models.PageSpeedResponse) models.HistoricalSeries {
	metrics := vitals.Normalize(report)

	out := models.HistoricalSeries{
		Labels:   append([]string(nil), HistoryLabels...),
		Datasets: make([]models.Dataset, 0, len(series)),
	}
	for _, s := range series {
		current := s.fallback
		if m := models.FindMetric(metrics, s.metric); m != nil {
			current = m.Value
		}
		out.Datasets = append(out.Datasets, models.Dataset{
			Label: s.label,
			Data:  g.points(current, s.variance, s.decimals),
		})
	}
	return out
}

// points starts 30% worse than current and walks down by a random step per
// period, never below zero.
func (g *Generator) points(current, variance float64, decimals int) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	data := make([]float64, len(HistoryLabels))
	value := current * 1.3
	for i := range data {
		value -= g.rnd.Float64() * variance
		if value < 0 {
			value = 0
		}
		data[i] = vitals.Round(value, decimals)
	}
	return data
}
