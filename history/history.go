// Package history records tool invocations so operators can audit what an
// agent did and when. Records never include arguments or results, only call
// metadata, so no credential or payload data can end up at rest.
package history

import (
	"context"
	"time"

	"github.com/watsonhub/ibmcloudkit/registry"
)

// Record is one stored invocation.
type Record struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Module     string    `json:"module"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// Store persists invocation records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Recorder adapts a Store to the dispatch observer interface. Store failures
// are reported through OnError and never fail the tool call itself.
type Recorder struct {
	store   Store
	onError func(error)
}

// NewRecorder wraps store as a dispatch observer. onError may be nil.
func NewRecorder(store Store, onError func(error)) *Recorder {
	return &Recorder{store: store, onError: onError}
}

// ObserveInvoke appends one record per dispatched call.
func (r *Recorder) ObserveInvoke(obs registry.InvokeObservation) {
	rec := Record{
		ID:         obs.RequestID,
		Tool:       obs.Tool,
		Module:     obs.Module,
		Success:    obs.Success,
		ErrorKind:  string(obs.ErrorKind),
		DurationMS: obs.DurationMS,
		StartedAt:  obs.StartedAt.UTC(),
	}
	if err := r.store.Append(context.Background(), rec); err != nil && r.onError != nil {
		r.onError(err)
	}
}

var _ registry.Observer = (*Recorder)(nil)
