package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/shyim/vitals-dashboard/internal/analysis"
	"github.com/shyim/vitals-dashboard/internal/models"
)

// Render formats res as a terminal panel. now anchors the relative
// "updated" timestamp.
func Render(res *analysis.Result, now time.Time) string {
	sections := []string{header(res, now)}

	if res.Notice != "" {
		sections = append(sections, warnStyle.Render("! "+res.Notice))
	}

	sections = append(sections, metrics(res.Metrics), impacts(res.BusinessImpacts))
	if len(res.Recommendations) > 0 {
		sections = append(sections, recommendations(res.Recommendations))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func header(res *analysis.Result, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(res.URL))
	b.WriteString(labelStyle.Render(fmt.Sprintf("  %s · %s", res.Device, res.Source)))
	if res.PerformanceScore != nil {
		b.WriteString(labelStyle.Render("  score "))
		b.WriteString(scoreStyle(*res.PerformanceScore).Render(fmt.Sprintf("%d", *res.PerformanceScore)))
	}
	b.WriteString("\n")

	updated := "updated " + humanize.RelTime(res.LastUpdated, now, "ago", "from now")
	switch {
	case res.Stale:
		updated += " (stale)"
	case res.Cached:
		updated += " (cached)"
	}
	b.WriteString(dimStyle.Render(updated))
	return b.String()
}

func metrics(list []models.PerformanceMetric) string {
	lines := []string{headerStyle.Render("Core Web Vitals")}
	if len(list) == 0 {
		return strings.Join(append(lines, dimStyle.Render("no metrics available")), "\n")
	}

	for _, m := range list {
		value := formatValue(m.Value, m.Unit)
		target := "target ≤ " + formatValue(m.Target, m.Unit)
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			labelStyle.Render(fmt.Sprintf("%-4s", m.Name)),
			statusStyle(m.Status).Render(fmt.Sprintf("%-8s", value)),
			statusStyle(m.Status).Render(fmt.Sprintf("%-18s", m.Status)),
			dimStyle.Render(target),
		))
	}
	return strings.Join(lines, "\n")
}

func impacts(list []models.BusinessImpact) string {
	lines := []string{headerStyle.Render("Business Impact")}
	for _, i := range list {
		lines = append(lines, fmt.Sprintf("%s %s → %s %s",
			labelStyle.Render(fmt.Sprintf("%-25s", i.Metric)),
			valueStyle.Render(formatValue(i.Current, i.Unit)),
			okStyle.Render(formatValue(i.Projected, i.Unit)),
			dimStyle.Render(fmt.Sprintf("(%s%% potential)", humanize.Ftoa(i.Improvement))),
		))
	}
	return strings.Join(lines, "\n")
}

func recommendations(list []models.Recommendation) string {
	lines := []string{headerStyle.Render("Recommendations")}
	for _, r := range list {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			levelStyle(r.Impact).Render(fmt.Sprintf("[%s]", r.Impact)),
			valueStyle.Render(r.Title),
			dimStyle.Render(fmt.Sprintf("effort %s · %s", r.Effort, strings.Join(r.Metrics, ", "))),
		))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v float64, unit string) string {
	s := humanize.Ftoa(v)
	switch unit {
	case "":
		return s
	case "%":
		return s + "%"
	default:
		return s + " " + unit
	}
}
