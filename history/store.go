package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/host"
)

// Outcome values stored with each record.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLost    = "lost"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New(errors.PhaseStore, errors.KindNotFound).Detail("run not found").Build()

// Record is one resolved run. Payload holds the result message on success
// and the fault text otherwise.
type Record struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ID         string    `json:"id"`
	Outcome    string    `json:"outcome"`
	Payload    string    `json:"payload"`
	DurationMS int64     `json:"duration_ms"`
}

// Stats holds aggregate run statistics.
type Stats struct {
	CountByOutcome map[string]int `json:"count_by_outcome"`
	Total          int            `json:"total"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for run records.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// FromOutcome converts a resolved controller request into a record.
func FromOutcome(o host.Outcome) *Record {
	r := &Record{
		ID:         o.RequestID,
		StartedAt:  o.Started.UTC(),
		FinishedAt: o.Finished.UTC(),
		DurationMS: o.Duration().Milliseconds(),
	}
	switch {
	case o.Err == nil:
		r.Outcome = OutcomeSuccess
		r.Payload = o.Result
	case errors.Is(o.Err, errors.ErrContextLost):
		r.Outcome = OutcomeLost
		r.Payload = errors.Message(o.Err)
	default:
		r.Outcome = OutcomeFailure
		r.Payload = errors.Message(o.Err)
	}
	return r
}

// Recorder returns a completion hook that stores every resolved request.
// Storage errors are logged; they never affect the request.
func Recorder(s Store, log *zap.Logger) func(host.Outcome) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(o host.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Insert(ctx, FromOutcome(o)); err != nil {
			log.Error("record run", zap.String("request", o.RequestID), zap.Error(err))
		}
	}
}
