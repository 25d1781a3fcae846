package impact

import (
	"slices"

	"github.com/shyim/vitals-dashboard/internal/models"
)

var catalog = []models.Recommendation{
	{
		ID:          "img-opt",
		Title:       "Image Optimization",
		Description: "Optimize and properly size images to reduce load times. Convert to modern formats like WebP.",
		Impact:      models.LevelHigh,
		Effort:      models.LevelMedium,
		Metrics:     []string{"LCP", "Page Load Time"},
	},
	{
		ID:          "code-split",
		Title:       "Code Splitting",
		Description: "Implement code splitting to reduce JavaScript bundle size and improve initial load time.",
		Impact:      models.LevelHigh,
		Effort:      models.LevelMedium,
		Metrics:     []string{"LCP", "TTI", "FID"},
	},
	{
		ID:          "cdn-usage",
		Title:       "CDN Implementation",
		Description: "Utilize a CDN to serve static assets closer to users and reduce server load.",
		Impact:      models.LevelMedium,
		Effort:      models.LevelLow,
		Metrics:     []string{"LCP", "Page Load Time"},
	},
	{
		ID:          "font-opt",
		Title:       "Font Optimization",
		Description: "Use font-display: swap and preload critical fonts to prevent layout shifts.",
		Impact:      models.LevelMedium,
		Effort:      models.LevelLow,
		Metrics:     []string{"CLS", "User Experience"},
	},
	{
		ID:          "lazy-load",
		Title:       "Implement Lazy Loading",
		Description: "Lazy load below-the-fold images and non-critical resources.",
		Impact:      models.LevelMedium,
		Effort:      models.LevelLow,
		Metrics:     []string{"LCP", "Page Load Time"},
	},
}

var levelRank = map[models.Level]int{
	models.LevelHigh:   0,
	models.LevelMedium: 1,
	models.LevelLow:    2,
}

// Recommend returns the catalog entries that target at least one metric
// outside the good tier, high impact first, then low effort first.
func Recommend(metrics []models.PerformanceMetric) []models.Recommendation {
	lagging := make(map[string]bool)
	for _, m := range metrics {
		if m.Status != models.StatusGood {
			lagging[string(m.Name)] = true
		}
	}

	var out []models.Recommendation
	for _, rec := range catalog {
		if slices.ContainsFunc(rec.Metrics, func(name string) bool { return lagging[name] }) {
			rec.Metrics = slices.Clone(rec.Metrics)
			out = append(out, rec)
		}
	}

	slices.SortStableFunc(out, func(a, b models.Recommendation) int {
		if d := levelRank[a.Impact] - levelRank[b.Impact]; d != 0 {
			return d
		}
		return levelRank[b.Effort] - levelRank[a.Effort]
	})
	return out
}
