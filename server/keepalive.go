package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// DefaultKeepaliveSchedule refreshes the token cache every 30 minutes,
// half the IAM token lifetime.
const DefaultKeepaliveSchedule = "*/30 * * * *"

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// TokenWarmer is the slice of the token manager the keepalive needs. The
// returned token is discarded; the call exists to repopulate the cache.
type TokenWarmer interface {
	Token(ctx context.Context) (auth.Token, error)
}

// Keepalive periodically acquires a token on a cron schedule so a
// long-idle serve deployment does not pay the exchange latency on the
// first tool call after a quiet stretch.
type Keepalive struct {
	schedule cron.Schedule
	warmer   TokenWarmer
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewKeepalive builds a keepalive from a standard five-field cron
// expression. Expressions are evaluated in UTC; an empty expression uses
// DefaultKeepaliveSchedule.
func NewKeepalive(expr string, warmer TokenWarmer, logger *slog.Logger) (*Keepalive, error) {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultKeepaliveSchedule
	}
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keepalive{
		schedule: schedule,
		warmer:   warmer,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run blocks, warming the token at each scheduled tick until the context
// is canceled. Warm failures are logged and the schedule continues; a
// transient IAM outage should not kill the serve loop.
func (k *Keepalive) Run(ctx context.Context) {
	for {
		next := k.schedule.Next(k.now().UTC())
		timer := time.NewTimer(next.Sub(k.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := k.warmer.Token(ctx); err != nil {
			k.logger.WarnContext(ctx, "token keepalive failed",
				"error_kind", string(tool.KindOf(err)))
			continue
		}
		k.logger.DebugContext(ctx, "token keepalive refreshed", "next", k.schedule.Next(k.now().UTC()))
	}
}

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("server: cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("server: invalid cron expression: %w", err)
	}
	return schedule, nil
}
