package feed

import (
	"context"
	"errors"

	"ewarn/internal/models"
)

// Feed errors
var (
	ErrFeedStatus         = errors.New("feed returned an error status")
	ErrUnsupportedDisease = errors.New("no field map for disease")
	ErrDecode             = errors.New("failed to decode feed response")
)

// Source provides surveillance records for detection runs. Records returns
// both actual and predicted rows; LatestActual returns nil when the disease
// has no actual data yet.
type Source interface {
	Records(ctx context.Context, disease models.Disease) ([]models.MonthlyRecord, error)
	LatestActual(ctx context.Context, disease models.Disease) (*models.Period, error)
}

// Invalidator is implemented by sources that cache upstream data
type Invalidator interface {
	Invalidate(ctx context.Context, disease models.Disease) error
}
