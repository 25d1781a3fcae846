package vitals

import (
	"math"

	"github.com/shyim/vitals-dashboard/internal/models"
)

// Threshold holds the upper bounds (inclusive) of the good and
// needs-improvement tiers. Anything above NeedsImprovement is poor.
type Threshold struct {
	Good             float64
	NeedsImprovement float64
}

type definition struct {
	threshold   Threshold
	unit        string
	decimals    int
	description string
}

var definitions = map[models.MetricName]definition{
	models.MetricLCP: {
		threshold:   Threshold{Good: 2.5, NeedsImprovement: 4.0},
		unit:        "s",
		decimals:    1,
		description: "Largest Contentful Paint measures loading performance.",
	},
	models.MetricFID: {
		threshold:   Threshold{Good: 100, NeedsImprovement: 300},
		unit:        "ms",
		decimals:    0,
		description: "First Input Delay measures interactivity.",
	},
	models.MetricCLS: {
		threshold:   Threshold{Good: 0.1, NeedsImprovement: 0.25},
		unit:        "",
		decimals:    2,
		description: "Cumulative Layout Shift measures visual stability.",
	},
	models.MetricTTI: {
		threshold:   Threshold{Good: 3.8, NeedsImprovement: 7.3},
		unit:        "s",
		decimals:    1,
		description: "Time to Interactive measures when the page becomes fully interactive.",
	},
}

// Tracked lists the metrics in the order they appear in a normalized result.
var Tracked = []models.MetricName{models.MetricLCP, models.MetricFID, models.MetricCLS, models.MetricTTI}

// ThresholdFor returns the status bounds for a tracked metric.
func ThresholdFor(name models.MetricName) (Threshold, bool) {
	def, ok := definitions[name]
	return def.threshold, ok
}

// Classify maps a value in the metric's display unit to a status tier.
func Classify(name models.MetricName, value float64) models.Status {
	def, ok := definitions[name]
	if !ok {
		return models.StatusPoor
	}
	switch {
	case value <= def.threshold.Good:
		return models.StatusGood
	case value <= def.threshold.NeedsImprovement:
		return models.StatusNeedsImprovement
	default:
		return models.StatusPoor
	}
}

// Round rounds v to the given number of decimal places, halves away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// NewMetric builds a metric from a value in display units. The status is
// derived from the unrounded value; the stored value is rounded.
func NewMetric(name models.MetricName, value float64) models.PerformanceMetric {
	def := definitions[name]
	return models.PerformanceMetric{
		Name:        name,
		Value:       Round(value, def.decimals),
		Unit:        def.unit,
		Target:      def.threshold.Good,
		Status:      Classify(name, value),
		Description: def.description,
	}
}

// Normalize maps a PageSpeed response to the tracked metrics. Field data
// wins over lab audits for LCP, FID and CLS; TTI only exists as a lab audit.
// A metric with no source is left out of the result.
func Normalize(report *models.PageSpeedResponse) []models.PerformanceMetric {
	metrics := make([]models.PerformanceMetric, 0, len(Tracked))
	for _, name := range Tracked {
		if value, ok := resolve(report, name); ok {
			metrics = append(metrics, NewMetric(name, value))
		}
	}
	return metrics
}

func resolve(report *models.PageSpeedResponse, name models.MetricName) (float64, bool) {
	if v, ok := fieldValue(report.Field(), name); ok {
		return v, true
	}
	return labValue(report, name)
}

func fieldValue(field *models.FieldMetrics, name models.MetricName) (float64, bool) {
	if field == nil {
		return 0, false
	}
	switch name {
	case models.MetricLCP:
		if field.LargestContentfulPaintMS != nil {
			return field.LargestContentfulPaintMS.Percentile / 1000, true
		}
	case models.MetricFID:
		if field.FirstInputDelayMS != nil {
			return field.FirstInputDelayMS.Percentile, true
		}
	case models.MetricCLS:
		// reported x100
		if field.CumulativeLayoutShiftScore != nil {
			return field.CumulativeLayoutShiftScore.Percentile / 100, true
		}
	}
	return 0, false
}

var labAudits = map[models.MetricName]struct {
	id    string
	scale float64
}{
	models.MetricLCP: {id: models.AuditLargestContentfulPaint, scale: 1000},
	models.MetricFID: {id: models.AuditMaxPotentialFID, scale: 1},
	models.MetricCLS: {id: models.AuditCumulativeLayoutShift, scale: 1},
	models.MetricTTI: {id: models.AuditInteractive, scale: 1000},
}

// labValue reports false for audits without a numericValue; they are
// omitted rather than read as zero.
func labValue(report *models.PageSpeedResponse, name models.MetricName) (float64, bool) {
	src, ok := labAudits[name]
	if !ok {
		return 0, false
	}
	audit := report.Audit(src.id)
	if audit == nil || audit.NumericValue == nil {
		return 0, false
	}
	return *audit.NumericValue / src.scale, true
}
