package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/watsonhub/ibmcloudkit/tool"
)

// InvokeObservation captures one dispatched tool call for observers
// (metrics, invocation history). It never carries arguments or results.
type InvokeObservation struct {
	RequestID  string
	Tool       string
	Module     string
	StartedAt  time.Time
	DurationMS int64
	Success    bool
	ErrorKind  tool.Kind
}

// Observer receives one observation per dispatched call.
type Observer interface {
	ObserveInvoke(InvokeObservation)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry  *Registry
	Observers []Observer
	// Tracer wraps each call in a span when set.
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Dispatcher resolves tool names to handlers and runs invocations:
// resolve, validate, execute. Validation failures are raised before the
// handler (and therefore before any network call) runs.
type Dispatcher struct {
	registry  *Registry
	observers []Observer
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		observers: cfg.Observers,
		tracer:    tracer,
		logger:    logger,
	}
}

// Call invokes the named tool with the given arguments and returns its
// structured result. Errors carry their taxonomy kind; a handler panic is
// contained and surfaced as an upstream error so one bad call cannot take
// down the hosting process.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	requestID := uuid.NewString()
	start := time.Now()

	def, err := d.registry.Resolve(name)
	if err != nil {
		d.finish(ctx, requestID, name, start, err)
		return nil, err
	}

	validated, err := tool.ValidateArgs(def, args)
	if err != nil {
		d.finish(ctx, requestID, name, start, err)
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "tool.call")
	result, err := d.invoke(ctx, def, validated)
	span.End()

	if err != nil {
		if te, ok := tool.AsError(err); ok && te.Tool == "" {
			te.Tool = name
		}
	}
	d.finish(ctx, requestID, name, start, err)
	return result, err
}

func (d *Dispatcher) invoke(ctx context.Context, def tool.Definition, args map[string]any) (result map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = tool.Errorf(tool.KindUpstream, "tool %q panicked: %v", def.Name, recovered)
		}
	}()
	return def.Handler(ctx, args)
}

func (d *Dispatcher) finish(ctx context.Context, requestID, name string, start time.Time, err error) {
	obs := InvokeObservation{
		RequestID:  requestID,
		Tool:       name,
		Module:     d.registry.ModuleOf(name),
		StartedAt:  start,
		DurationMS: time.Since(start).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		obs.ErrorKind = tool.KindOf(err)
	}
	for _, o := range d.observers {
		o.ObserveInvoke(obs)
	}

	if err != nil {
		d.logger.WarnContext(ctx, "tool call failed",
			"request_id", requestID,
			"tool", name,
			"kind", string(obs.ErrorKind),
			"duration_ms", obs.DurationMS,
			"error", fmt.Sprintf("%v", err),
		)
		return
	}
	d.logger.InfoContext(ctx, "tool call finished",
		"request_id", requestID,
		"tool", name,
		"duration_ms", obs.DurationMS,
	)
}
