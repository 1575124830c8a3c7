package storage

import (
	"context"

	"github.com/linkedin-autopost/internal/models"
)

// TokenStore persists OAuth tokens
type TokenStore interface {
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	DeleteToken(ctx context.Context, provider string) error
}

// RunLedger records every run and its outcome
type RunLedger interface {
	CreateRun(ctx context.Context, run *models.RunRecord) error
	// FinishRun applies the outcome to the run with the same run id
	FinishRun(ctx context.Context, outcome models.Outcome) error
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.RunRecord, error)
}

// Repository defines the interface for data persistence
type Repository interface {
	RunLedger
	TokenStore

	// Maintenance
	Close() error
	Migrate() error
}

// RunFilter defines filtering options for runs
type RunFilter struct {
	Reason *models.Reason
	Posted *bool
	Limit  int
	Offset int
}

// DefaultRunFilter returns the newest 20 runs
func DefaultRunFilter() RunFilter {
	return RunFilter{
		Limit: 20,
	}
}
