package usecase

import (
	"context"

	"github.com/example/kyc-voice/internal/repository"
)

// Summary aggregates session outcomes for operators.
type Summary struct {
	TotalSessions     int64            `json:"total_sessions"`
	ConfirmedSessions int64            `json:"confirmed_sessions"`
	ConfirmationRate  float64          `json:"confirmation_rate"`
	ByStatus          map[string]int64 `json:"by_status"`
}

// Summary counts sessions per status from the session table.
func (uc *KYCUseCase) Summary(ctx context.Context) (*Summary, error) {
	counts, err := uc.repo.CountSessionsByStatus(ctx)
	if err != nil {
		return nil, &StorageError{Operation: "count sessions", Err: err}
	}

	summary := &Summary{ByStatus: counts}
	for _, count := range counts {
		summary.TotalSessions += count
	}
	summary.ConfirmedSessions = counts[repository.StatusConfirmed]

	if summary.TotalSessions > 0 {
		summary.ConfirmationRate = float64(summary.ConfirmedSessions) / float64(summary.TotalSessions)
	}

	return summary, nil
}
