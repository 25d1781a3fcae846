package impact

import (
	"math"

	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

// Baseline KPI values the projections start from.
const (
	BaseConversionRate  = 2.4
	BaseBounceRate      = 45.0
	BaseSessionMinutes  = 2.5
	BasePagesPerSession = 3.2

	// MinImprovement is applied to both accumulators even for an all-good
	// report so the dashboard always shows a non-zero projection.
	MinImprovement = 10.0
)

type contribution struct {
	conversion float64
	bounce     float64
}

// Only LCP and CLS move the projections.
var contributions = map[models.MetricName]map[models.Status]contribution{
	models.MetricLCP: {
		models.StatusPoor:             {conversion: 25, bounce: 15},
		models.StatusNeedsImprovement: {conversion: 15, bounce: 10},
	},
	models.MetricCLS: {
		models.StatusPoor:             {conversion: 10, bounce: 15},
		models.StatusNeedsImprovement: {conversion: 5, bounce: 5},
	},
}

// Improvements returns the conversion and bounce-rate improvement
// percentages for a metric set, both floored at MinImprovement.
func Improvements(metrics []models.PerformanceMetric) (conversion, bounce float64) {
	for name, byStatus := range contributions {
		m := models.FindMetric(metrics, name)
		if m == nil {
			continue
		}
		c := byStatus[m.Status]
		conversion += c.conversion
		bounce += c.bounce
	}
	return math.Max(conversion, MinImprovement), math.Max(bounce, MinImprovement)
}

// Estimate projects business KPIs if the current metrics reached the good tier.
func Estimate(metrics []models.PerformanceMetric) []models.BusinessImpact {
	conversion, bounce := Improvements(metrics)
	engagement := 1 + conversion/200

	return []models.BusinessImpact{
		{
			Metric:      "Conversion Rate",
			Current:     BaseConversionRate,
			Projected:   vitals.Round(BaseConversionRate*(1+conversion/100), 1),
			Unit:        "%",
			Improvement: conversion,
		},
		{
			Metric:      "Bounce Rate",
			Current:     BaseBounceRate,
			Projected:   math.Round(BaseBounceRate * (1 - bounce/100)),
			Unit:        "%",
			Improvement: bounce,
		},
		{
			Metric:      "Average Session Duration",
			Current:     BaseSessionMinutes,
			Projected:   vitals.Round(BaseSessionMinutes*engagement, 1),
			Unit:        "minutes",
			Improvement: math.Round(conversion / 2),
		},
		{
			Metric:      "Pages per Session",
			Current:     BasePagesPerSession,
			Projected:   vitals.Round(BasePagesPerSession*engagement, 1),
			Unit:        "",
			Improvement: math.Round(conversion / 2),
		},
	}
}
