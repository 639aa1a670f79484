package ibmcloud

import "time"

// Default transport retry budget. Linear backoff (unit × attempt) keeps the
// worst case bounded and predictable: 250 ms, then 500 ms.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 250 * time.Millisecond
)

// RetryPolicy bounds transient-failure retries on outbound service calls.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func normalizeRetryPolicy(p RetryPolicy) RetryPolicy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.Backoff <= 0 {
		out.Backoff = defaultBackoff
	}
	return out
}
