package alerts

import (
	"ewarn/internal/models"
)

// SelectWindow keeps the predicted records dated after the latest actual
// month and no more than models.WindowMonths months past it. The lower bound
// is exclusive and the upper bound inclusive. Input order is preserved and
// the input slice is not modified.
func SelectWindow(records []models.MonthlyRecord, latest *models.Period) []models.MonthlyRecord {
	if len(records) == 0 || latest == nil || !latest.Valid() {
		return nil
	}

	reference := latest.FirstDay()
	horizon := latest.AddMonths(models.WindowMonths).FirstDay()

	var selected []models.MonthlyRecord
	for _, r := range records {
		if r.Status != models.StatusPredicted || !r.Period.Valid() {
			continue
		}
		d := r.Period.FirstDay()
		if d.After(reference) && !d.After(horizon) {
			selected = append(selected, r)
		}
	}
	return selected
}
