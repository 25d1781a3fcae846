package models

import "time"

type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

func (d Device) Valid() bool {
	return d == DeviceMobile || d == DeviceDesktop
}

// ParseDevice maps an empty string to mobile, the dashboard default.
func ParseDevice(s string) (Device, bool) {
	if s == "" {
		return DeviceMobile, true
	}
	d := Device(s)
	return d, d.Valid()
}

type MetricName string

const (
	MetricLCP MetricName = "LCP"
	MetricFID MetricName = "FID"
	MetricCLS MetricName = "CLS"
	MetricTTI MetricName = "TTI"
)

type Status string

const (
	StatusGood             Status = "good"
	StatusNeedsImprovement Status = "needs-improvement"
	StatusPoor             Status = "poor"
)

type PerformanceMetric struct {
	Name        MetricName `json:"name"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	Target      float64    `json:"target"`
	Status      Status     `json:"status"`
	Description string     `json:"description"`
}

// FindMetric returns the metric with the given name, or nil when the
// report carried no data for it.
func FindMetric(metrics []PerformanceMetric, name MetricName) *PerformanceMetric {
	for i := range metrics {
		if metrics[i].Name == name {
			return &metrics[i]
		}
	}
	return nil
}

type BusinessImpact struct {
	Metric      string  `json:"metric"`
	Current     float64 `json:"current"`
	Projected   float64 `json:"projected"`
	Unit        string  `json:"unit"`
	Improvement float64 `json:"improvement"`
}

type HistoricalSeries struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

type Recommendation struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      Level    `json:"impact"`
	Effort      Level    `json:"effort"`
	Metrics     []string `json:"metrics"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	Kind    string  `json:"kind,omitempty"`
	Details *string `json:"details,omitempty"`
}

type CredentialStatus struct {
	Configured  bool `json:"configured"`
	Placeholder bool `json:"placeholder"`
}

type SetCredentialRequest struct {
	Key string `json:"key"`
}

type StateResponse struct {
	State       string     `json:"state"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// PageSpeed Insights v5 response

type PageSpeedResponse struct {
	ID                   string             `json:"id,omitempty"`
	AnalysisUTCTimestamp string             `json:"analysisUTCTimestamp,omitempty"`
	LoadingExperience    *LoadingExperience `json:"loadingExperience,omitempty"`
	LighthouseResult     *LighthouseResult  `json:"lighthouseResult,omitempty"`
}

// LoadingExperience is the field (real-user) block.
type LoadingExperience struct {
	ID              string        `json:"id,omitempty"`
	Metrics         *FieldMetrics `json:"metrics,omitempty"`
	OverallCategory string        `json:"overall_category,omitempty"`
}

type FieldMetrics struct {
	CumulativeLayoutShiftScore *FieldMetric `json:"CUMULATIVE_LAYOUT_SHIFT_SCORE,omitempty"`
	LargestContentfulPaintMS   *FieldMetric `json:"LARGEST_CONTENTFUL_PAINT_MS,omitempty"`
	FirstInputDelayMS          *FieldMetric `json:"FIRST_INPUT_DELAY_MS,omitempty"`
}

type FieldMetric struct {
	Percentile    float64        `json:"percentile"`
	Distributions []Distribution `json:"distributions,omitempty"`
	Category      string         `json:"category,omitempty"`
}

type Distribution struct {
	Min        float64  `json:"min"`
	Max        *float64 `json:"max,omitempty"`
	Proportion float64  `json:"proportion"`
}

// LighthouseResult is the lab (synthetic audit) block.
type LighthouseResult struct {
	RequestedURL string            `json:"requestedUrl,omitempty"`
	FinalURL     string            `json:"finalUrl,omitempty"`
	FetchTime    string            `json:"fetchTime,omitempty"`
	Audits       map[string]*Audit `json:"audits,omitempty"`
	Categories   *Categories       `json:"categories,omitempty"`
}

type Audit struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	NumericValue *float64 `json:"numericValue,omitempty"`
	DisplayValue string   `json:"displayValue,omitempty"`
}

type Categories struct {
	Performance *Category `json:"performance,omitempty"`
}

type Category struct {
	Score *float64 `json:"score"`
}

// Lab audit identifiers read by the normalizer.
const (
	AuditLargestContentfulPaint = "largest-contentful-paint"
	AuditMaxPotentialFID        = "max-potential-fid"
	AuditCumulativeLayoutShift  = "cumulative-layout-shift"
	AuditInteractive            = "interactive"
)

// Audit returns the lab audit with the given id, or nil.
func (r *PageSpeedResponse) Audit(id string) *Audit {
	if r == nil || r.LighthouseResult == nil {
		return nil
	}
	return r.LighthouseResult.Audits[id]
}

// Field returns the real-user metric block, or nil when absent.
func (r *PageSpeedResponse) Field() *FieldMetrics {
	if r == nil || r.LoadingExperience == nil {
		return nil
	}
	return r.LoadingExperience.Metrics
}

// PerformanceScore returns the lab performance category score on a 0-100
// scale and whether one was present.
func (r *PageSpeedResponse) PerformanceScore() (int, bool) {
	if r == nil || r.LighthouseResult == nil || r.LighthouseResult.Categories == nil {
		return 0, false
	}
	perf := r.LighthouseResult.Categories.Performance
	if perf == nil || perf.Score == nil {
		return 0, false
	}
	return int(*perf.Score*100 + 0.5), true
}

func Float(v float64) *float64 {
	return &v
}
