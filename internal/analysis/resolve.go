package analysis

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

var tracer = otel.Tracer("github.com/shyim/vitals-dashboard/internal/analysis")

type OutcomeKind string

const (
	// OutcomeOK means the first source answered with usable data.
	OutcomeOK OutcomeKind = "ok"
	// OutcomeDegraded carries data together with the reason the preferred
	// source could not be used.
	OutcomeDegraded OutcomeKind = "degraded"
	// OutcomeError carries no data.
	OutcomeError OutcomeKind = "error"
)

type Outcome struct {
	Kind   OutcomeKind
	Report *models.PageSpeedResponse
	Source string
	Reason *Error
}

var errNoSources = errors.New("no data source produced a report")

// Resolve walks the sources in order and returns the first report. The
// first failure is kept as the reason for a degraded outcome. A timeout
// ends resolution immediately without falling back.
func Resolve(ctx context.Context, sources []Source, req Request) Outcome {
	var reason *Error
	for _, src := range sources {
		report, err := fetch(ctx, src, req)
		if err == nil && report == nil {
			err = &Error{Kind: KindMalformedResponse, Err: errors.New("empty report")}
		}
		if err != nil {
			e := asError(ctx, err)
			if e.Kind == KindTimeout {
				return Outcome{Kind: OutcomeError, Source: src.Name(), Reason: e}
			}
			if reason == nil {
				reason = e
			}
			continue
		}

		if reason != nil {
			return Outcome{Kind: OutcomeDegraded, Report: report, Source: src.Name(), Reason: reason}
		}
		if len(vitals.Normalize(report)) == 0 {
			return Outcome{
				Kind:   OutcomeDegraded,
				Report: report,
				Source: src.Name(),
				Reason: &Error{Kind: KindMalformedResponse, Err: errors.New("no recognized metric blocks")},
			}
		}
		return Outcome{Kind: OutcomeOK, Report: report, Source: src.Name()}
	}

	if reason == nil {
		reason = &Error{Kind: KindNetworkOrHTTP, Err: errNoSources}
	}
	return Outcome{Kind: OutcomeError, Reason: reason}
}

func fetch(ctx context.Context, src Source, req Request) (*models.PageSpeedResponse, error) {
	ctx, span := tracer.Start(ctx, "source."+src.Name(), trace.WithAttributes(
		attribute.String("vitals.url", req.URL),
		attribute.String("vitals.device", string(req.Device)),
	))
	defer span.End()

	report, err := src.Fetch(ctx, req)
	if err != nil {
		span.SetAttributes(attribute.String("vitals.error_kind", string(KindOf(err))))
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func asError(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return classify(ctx, err)
}
