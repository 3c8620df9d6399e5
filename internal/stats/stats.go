// Package stats implements the StatsEmitter: an optional, best-effort
// publisher of per-operation telemetry events, published as records on
// the log rather than kept as in-process counters.
package stats

import (
	"context"
	"encoding/json"

	"github.com/basekv/basekv/internal/streamlog"
	"github.com/basekv/basekv/pkg/log"
)

// Event is the payload published for one observed operation.
type Event struct {
	Operation        string      `json:"operation"`
	ID               string      `json:"id,omitempty"`
	Pattern          string      `json:"pattern,omitempty"`
	Query            interface{} `json:"query,omitempty"`
	QueryResultCount *int        `json:"queryResultCount,omitempty"`
	Timestamp        int64       `json:"timestamp"`
	DurationMs       int64       `json:"duration"`
}

// Emitter publishes Events to "<statsStream>.stats" on the configured log
// client. A nil Emitter is a valid no-op, matching a Base opened without
// statsStreamName configured.
type Emitter struct {
	client      streamlog.Client
	statsStream string
	logger      log.Logger
}

// New returns an Emitter, or nil if statsStream is empty (stats disabled).
func New(client streamlog.Client, statsStream string, logger log.Logger) *Emitter {
	if statsStream == "" {
		return nil
	}
	return &Emitter{client: client, statsStream: statsStream, logger: logger}
}

// Emit marshals ev and publishes it fire-and-forget. Failures are logged
// at Warn and swallowed; they never surface to the caller that triggered
// the underlying operation.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("stats: marshal failed", log.Err(err))
		return
	}
	subject := e.statsStream + ".stats"
	if _, err := e.client.Publish(ctx, e.statsStream, subject, b); err != nil {
		e.logger.Warn("stats: publish failed", log.Err(err), log.Str("subject", subject))
	}
}
