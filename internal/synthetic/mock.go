package synthetic

import (
	"fmt"
	"time"

	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

// profile is the baseline for one device type. Mobile is deliberately
// slower than desktop.
type profile struct {
	lcpMS      float64
	fidMS      float64
	cls        float64
	ttiMS      float64
	score      float64
	fcpMS      float64
	tbtMS      float64
	speedIndex float64
}

var profiles = map[models.Device]profile{
	models.DeviceMobile: {
		lcpMS:      3200,
		fidMS:      120,
		cls:        0.18,
		ttiMS:      5800,
		score:      0.65,
		fcpMS:      1900,
		tbtMS:      310,
		speedIndex: 4100,
	},
	models.DeviceDesktop: {
		lcpMS:      2100,
		fidMS:      75,
		cls:        0.08,
		ttiMS:      3500,
		score:      0.89,
		fcpMS:      900,
		tbtMS:      120,
		speedIndex: 1800,
	},
}

var fieldCategory = map[models.Status]string{
	models.StatusGood:             "FAST",
	models.StatusNeedsImprovement: "AVERAGE",
	models.StatusPoor:             "SLOW",
}

var auditScore = map[models.Status]float64{
	models.StatusGood:             0.95,
	models.StatusNeedsImprovement: 0.6,
	models.StatusPoor:             0.3,
}

// GenerateMock returns a plausible PageSpeed response for the device type.
// Field and lab blocks are built from the same numbers so both resolution
// paths of the normalizer agree. Unknown devices get the mobile profile.
func GenerateMock(device models.Device) *models.PageSpeedResponse {
	p, ok := profiles[device]
	if !ok {
		p = profiles[models.DeviceMobile]
	}

	lcp := vitals.Classify(models.MetricLCP, p.lcpMS/1000)
	fid := vitals.Classify(models.MetricFID, p.fidMS)
	cls := vitals.Classify(models.MetricCLS, p.cls)
	tti := vitals.Classify(models.MetricTTI, p.ttiMS/1000)

	return &models.PageSpeedResponse{
		ID:                   "synthetic",
		AnalysisUTCTimestamp: time.Now().UTC().Format(time.RFC3339),
		LoadingExperience: &models.LoadingExperience{
			Metrics: &models.FieldMetrics{
				LargestContentfulPaintMS: &models.FieldMetric{
					Percentile:    p.lcpMS,
					Distributions: distributions(lcp, 2500, 4000),
					Category:      fieldCategory[lcp],
				},
				FirstInputDelayMS: &models.FieldMetric{
					Percentile:    p.fidMS,
					Distributions: distributions(fid, 100, 300),
					Category:      fieldCategory[fid],
				},
				CumulativeLayoutShiftScore: &models.FieldMetric{
					Percentile:    vitals.Round(p.cls*100, 0),
					Distributions: distributions(cls, 10, 25),
					Category:      fieldCategory[cls],
				},
			},
			OverallCategory: fieldCategory[worst(lcp, fid, cls)],
		},
		LighthouseResult: &models.LighthouseResult{
			FetchTime: time.Now().UTC().Format(time.RFC3339),
			Audits: map[string]*models.Audit{
				models.AuditLargestContentfulPaint: audit(models.AuditLargestContentfulPaint, "Largest Contentful Paint", lcp, p.lcpMS, seconds(p.lcpMS)),
				models.AuditMaxPotentialFID:        audit(models.AuditMaxPotentialFID, "Max Potential First Input Delay", fid, p.fidMS, fmt.Sprintf("%.0f ms", p.fidMS)),
				models.AuditCumulativeLayoutShift:  audit(models.AuditCumulativeLayoutShift, "Cumulative Layout Shift", cls, p.cls, fmt.Sprintf("%.2f", p.cls)),
				models.AuditInteractive:            audit(models.AuditInteractive, "Time to Interactive", tti, p.ttiMS, seconds(p.ttiMS)),
				"first-contentful-paint":           audit("first-contentful-paint", "First Contentful Paint", lcp, p.fcpMS, seconds(p.fcpMS)),
				"total-blocking-time":              audit("total-blocking-time", "Total Blocking Time", fid, p.tbtMS, fmt.Sprintf("%.0f ms", p.tbtMS)),
				"speed-index":                      audit("speed-index", "Speed Index", lcp, p.speedIndex, seconds(p.speedIndex)),
			},
			Categories: &models.Categories{
				Performance: &models.Category{Score: models.Float(p.score)},
			},
		},
	}
}

func audit(id, title string, status models.Status, value float64, display string) *models.Audit {
	return &models.Audit{
		ID:           id,
		Title:        title,
		Score:        models.Float(auditScore[status]),
		NumericValue: models.Float(value),
		DisplayValue: display,
	}
}

func seconds(ms float64) string {
	return fmt.Sprintf("%.1f s", ms/1000)
}

// distributions splits real users into the three buckets, weighted toward
// the bucket the percentile falls in.
func distributions(status models.Status, good, ni float64) []models.Distribution {
	weights := map[models.Status][3]float64{
		models.StatusGood:             {0.78, 0.15, 0.07},
		models.StatusNeedsImprovement: {0.52, 0.31, 0.17},
		models.StatusPoor:             {0.31, 0.28, 0.41},
	}[status]
	return []models.Distribution{
		{Min: 0, Max: models.Float(good), Proportion: weights[0]},
		{Min: good, Max: models.Float(ni), Proportion: weights[1]},
		{Min: ni, Proportion: weights[2]},
	}
}

func worst(statuses ...models.Status) models.Status {
	out := models.StatusGood
	for _, s := range statuses {
		switch {
		case s == models.StatusPoor:
			return s
		case s == models.StatusNeedsImprovement:
			out = s
		}
	}
	return out
}
