package analysis

import (
	"context"
	"errors"
	"strings"

	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/pagespeed"
	"github.com/shyim/vitals-dashboard/internal/synthetic"
)

// Request identifies one analysis. URL is expected to be normalized.
type Request struct {
	URL     string
	Device  models.Device
	Refresh bool
}

func (r Request) Key() string {
	return string(r.Device) + "|" + r.URL
}

// Source is one data-source strategy. Resolve tries sources in order.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*models.PageSpeedResponse, error)
}

// Credentials is the read side of the credential store.
type Credentials interface {
	Get() string
}

// Runner performs the outbound analysis call.
type Runner interface {
	Run(ctx context.Context, target string, device models.Device, key string) (*models.PageSpeedResponse, error)
}

// PageSpeedSource queries the real API.
type PageSpeedSource struct {
	client Runner
	creds  Credentials
}

func NewPageSpeedSource(client Runner, creds Credentials) *PageSpeedSource {
	return &PageSpeedSource{client: client, creds: creds}
}

func (s *PageSpeedSource) Name() string { return "pagespeed" }

func (s *PageSpeedSource) Fetch(ctx context.Context, req Request) (*models.PageSpeedResponse, error) {
	// read at point of use; the key may change while other requests are in flight
	key := strings.TrimSpace(s.creds.Get())
	switch {
	case key == "":
		return nil, &Error{Kind: KindCredentialMissing}
	case credential.IsPlaceholder(key):
		return nil, &Error{Kind: KindCredentialInvalid}
	}

	report, err := s.client.Run(ctx, req.URL, req.Device, key)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return report, nil
}

func classify(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, pagespeed.ErrMalformedBody):
		return &Error{Kind: KindMalformedResponse, Err: err}
	default:
		return &Error{Kind: KindNetworkOrHTTP, Err: err}
	}
}

// SyntheticSource always succeeds with the device's mock report.
type SyntheticSource struct{}

func (SyntheticSource) Name() string { return "synthetic" }

func (SyntheticSource) Fetch(_ context.Context, req Request) (*models.PageSpeedResponse, error) {
	report := synthetic.GenerateMock(req.Device)
	report.ID = req.URL
	report.LighthouseResult.RequestedURL = req.URL
	report.LighthouseResult.FinalURL = req.URL
	return report, nil
}
