package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

type expectation struct {
	value  float64
	status models.Status
}

func TestGenerateMockRoundTrip(t *testing.T) {
	cases := map[models.Device]map[models.MetricName]expectation{
		models.DeviceMobile: {
			models.MetricLCP: {3.2, models.StatusNeedsImprovement},
			models.MetricCLS: {0.18, models.StatusNeedsImprovement},
			models.MetricFID: {120, models.StatusNeedsImprovement},
			// 5.8 s sits inside the TTI needs-improvement band (3.8, 7.3] of the
			// vitals definitions table, see TestMobileTTIBand
			models.MetricTTI: {5.8, models.StatusNeedsImprovement},
		},
		models.DeviceDesktop: {
			models.MetricLCP: {2.1, models.StatusGood},
			models.MetricCLS: {0.08, models.StatusGood},
			models.MetricFID: {75, models.StatusGood},
			models.MetricTTI: {3.5, models.StatusGood},
		},
	}

	for device, want := range cases {
		metrics := vitals.Normalize(GenerateMock(device))
		require.Len(t, metrics, 4, device)
		for name, exp := range want {
			m := models.FindMetric(metrics, name)
			require.NotNil(t, m, "%s %s", device, name)
			assert.Equal(t, exp.value, m.Value, "%s %s", device, name)
			assert.Equal(t, exp.status, m.Status, "%s %s", device, name)
		}
	}
}

func TestGenerateMockBlocksAgree(t *testing.T) {
	for _, device := range []models.Device{models.DeviceMobile, models.DeviceDesktop} {
		full := GenerateMock(device)

		fieldOnly := GenerateMock(device)
		fieldOnly.LighthouseResult = nil

		labOnly := GenerateMock(device)
		labOnly.LoadingExperience = nil

		fromField := vitals.Normalize(fieldOnly)
		fromLab := vitals.Normalize(labOnly)
		require.Len(t, fromField, 3)
		require.Len(t, fromLab, 4)
		assert.Equal(t, fromField, fromLab[:3], device)
		assert.Equal(t, vitals.Normalize(full), fromLab, device)
	}
}

func TestGenerateMockDesktopFaster(t *testing.T) {
	mobile := vitals.Normalize(GenerateMock(models.DeviceMobile))
	desktop := vitals.Normalize(GenerateMock(models.DeviceDesktop))
	for i := range mobile {
		assert.Greater(t, mobile[i].Value, desktop[i].Value, mobile[i].Name)
	}

	ms, _ := GenerateMock(models.DeviceMobile).PerformanceScore()
	ds, _ := GenerateMock(models.DeviceDesktop).PerformanceScore()
	assert.Equal(t, 65, ms)
	assert.Equal(t, 89, ds)
}

func TestGenerateMockUnknownDeviceUsesMobile(t *testing.T) {
	assert.Equal(t,
		vitals.Normalize(GenerateMock(models.DeviceMobile)),
		vitals.Normalize(GenerateMock("tablet")))
}

func TestGenerateHistoryShape(t *testing.T) {
	g := NewSeededGenerator(1, 2)
	history := g.GenerateHistory(GenerateMock(models.DeviceMobile))

	assert.Equal(t, HistoryLabels, history.Labels)
	require.Len(t, history.Datasets, 4)
	for _, ds := range history.Datasets {
		assert.Len(t, ds.Data, len(history.Labels), ds.Label)
	}
}

func TestGenerateHistoryTrendsDownFromAnchor(t *testing.T) {
	g := NewSeededGenerator(42, 7)
	history := g.GenerateHistory(GenerateMock(models.DeviceMobile))

	lcp := history.Datasets[0]
	assert.Equal(t, "LCP (seconds)", lcp.Label)
	// starts from 3.2*1.3 = 4.16 and each step removes at most 0.2
	assert.LessOrEqual(t, lcp.Data[0], 4.2)
	assert.GreaterOrEqual(t, lcp.Data[0], 3.9)
	for i := 1; i < len(lcp.Data); i++ {
		assert.LessOrEqual(t, lcp.Data[i], lcp.Data[i-1]+0.05)
	}
}

func TestGenerateHistoryEmptyReportUsesFallbacks(t *testing.T) {
	g := NewSeededGenerator(3, 4)
	history := g.GenerateHistory(&models.PageSpeedResponse{})

	require.Len(t, history.Datasets, 4)
	for _, ds := range history.Datasets {
		require.Len(t, ds.Data, 6)
		assert.Positive(t, ds.Data[0], ds.Label)
	}
	// FID fallback 100 -> first point within (120, 130]
	assert.InDelta(t, 125, history.Datasets[1].Data[0], 5)
}

func TestGenerateHistoryNeverNegative(t *testing.T) {
	report := &models.PageSpeedResponse{
		LighthouseResult: &models.LighthouseResult{
			Audits: map[string]*models.Audit{
				models.AuditLargestContentfulPaint: {NumericValue: models.Float(0)},
				models.AuditMaxPotentialFID:        {NumericValue: models.Float(1)},
				models.AuditCumulativeLayoutShift:  {NumericValue: models.Float(0)},
				models.AuditInteractive:            {NumericValue: models.Float(10)},
			},
		},
	}

	g := NewSeededGenerator(9, 9)
	for i := 0; i < 50; i++ {
		for _, ds := range g.GenerateHistory(report).Datasets {
			require.Len(t, ds.Data, 6)
			for _, v := range ds.Data {
				require.GreaterOrEqual(t, v, 0.0, ds.Label)
			}
		}
	}
}

func TestGenerateHistoryDeterministicWithSeed(t *testing.T) {
	report := GenerateMock(models.DeviceDesktop)
	a := NewSeededGenerator(5, 6).GenerateHistory(report)
	b := NewSeededGenerator(5, 6).GenerateHistory(report)
	assert.Equal(t, a, b)
}

func TestMobileTTIBand(t *testing.T) {
	th, ok := vitals.ThresholdFor(models.MetricTTI)
	require.True(t, ok)
	assert.Equal(t, 3.8, th.Good)
	assert.Equal(t, 7.3, th.NeedsImprovement)
	assert.Greater(t, 5.8, th.Good)
	assert.LessOrEqual(t, 5.8, th.NeedsImprovement)
}
