package storage

import (
	"context"

	"ewarn/internal/models"
)

// RecordStore persists surveillance records and reads them back for detection
type RecordStore interface {
	Records(ctx context.Context, disease models.Disease) ([]models.MonthlyRecord, error)
	LatestActual(ctx context.Context, disease models.Disease) (*models.Period, error)
	SaveRecords(ctx context.Context, disease models.Disease, records []models.MonthlyRecord) (int, error)
}
