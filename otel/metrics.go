package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/registry"
)

// InvokeObserver translates dispatched tool calls into OpenTelemetry
// metrics. It records counters for invocations and failures and a latency
// histogram, attributed by tool and module.
type InvokeObserver struct {
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewInvokeObserver creates an InvokeObserver bound to the given meter.
func NewInvokeObserver(meter metric.Meter) (*InvokeObserver, error) {
	invocations, err := meter.Int64Counter("ibmcloudkit.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("ibmcloudkit.tool.failures",
		metric.WithDescription("Number of failed tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("ibmcloudkit.tool.duration",
		metric.WithDescription("Duration of tool invocation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &InvokeObserver{
		invocations: invocations,
		failures:    failures,
		latency:     latency,
	}, nil
}

// ObserveInvoke records one dispatched call.
func (o *InvokeObserver) ObserveInvoke(obs registry.InvokeObservation) {
	if o == nil {
		return
	}

	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("tool", obs.Tool),
		attribute.String("module", obs.Module),
		attribute.Bool("success", obs.Success),
	}
	if obs.ErrorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", string(obs.ErrorKind)))
	}
	options := metric.WithAttributes(attrs...)

	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(obs.DurationMS)*time.Millisecond)/float64(time.Second), options)
	if !obs.Success {
		o.failures.Add(ctx, 1, options)
	}
}

var _ registry.Observer = (*InvokeObserver)(nil)

// RefreshObserver translates token refresh outcomes into OpenTelemetry
// metrics: an exchange counter and an exchange latency histogram.
type RefreshObserver struct {
	refreshes metric.Int64Counter
	latency   metric.Float64Histogram
}

// NewRefreshObserver creates a RefreshObserver bound to the given meter.
func NewRefreshObserver(meter metric.Meter) (*RefreshObserver, error) {
	refreshes, err := meter.Int64Counter("ibmcloudkit.token.refreshes",
		metric.WithDescription("Number of IAM token exchanges"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("ibmcloudkit.token.refresh.duration",
		metric.WithDescription("Duration of IAM token exchange in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &RefreshObserver{refreshes: refreshes, latency: latency}, nil
}

// ObserveRefresh records one token exchange outcome. Suitable as the token
// manager's OnRefresh hook.
func (o *RefreshObserver) ObserveRefresh(obs auth.RefreshObservation) {
	if o == nil {
		return
	}

	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.Bool("success", obs.Success),
		attribute.Int("attempts", obs.Attempts),
	}
	if obs.ErrorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", string(obs.ErrorKind)))
	}
	options := metric.WithAttributes(attrs...)

	o.refreshes.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(obs.DurationMS)*time.Millisecond)/float64(time.Second), options)
}
