package db

import (
	"context"
	"errors"
	"time"

	"github.com/longmans/prompt-agent/internal/optimizer"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store is the persistence interface for run history.
type Store interface {
	RunStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID                  string            `json:"id"`
	Role                string            `json:"role"`
	ModelType           string            `json:"model_type"`
	Step                optimizer.Step    `json:"step"`
	Degraded            bool              `json:"degraded"`
	Fallbacks           []optimizer.Stage `json:"fallbacks"`
	FinalRecommendation string            `json:"final_recommendation"`
	CreatedAt           time.Time         `json:"created_at"`
}

// RunStore persists completed optimization runs.
type RunStore interface {
	// SaveRun writes (or overwrites) a run keyed by its RunID.
	SaveRun(ctx context.Context, resp optimizer.Response) error

	// GetRun returns the full response of a run, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*optimizer.Response, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunSummary, error)

	// CountRuns returns the number of stored runs.
	CountRuns(ctx context.Context) (int, error)

	// DeleteRun removes a run. Deleting a missing run is not an error.
	DeleteRun(ctx context.Context, id string) error
}
