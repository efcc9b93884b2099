package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/storage"
)

// DashboardDays is the length of the per-day series.
const DashboardDays = 7

// DayCount is the number of scans per tier on one UTC day.
type DayCount struct {
	Date   string `json:"date"`
	Low    int    `json:"low"`
	Medium int    `json:"medium"`
	High   int    `json:"high"`
}

type Dashboard struct {
	Total  int                    `json:"total"`
	Counts map[models.URLRisk]int `json:"counts"`
	Daily  []DayCount             `json:"daily"`
}

// Dashboard aggregates the user's full history and the last seven UTC days,
// oldest day first.
func (r *Recorder) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	logs, err := r.store.ListActivity(ctx, storage.ActivityFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}
	return summarize(logs, r.now()), nil
}

func summarize(logs []*models.ActivityLog, now time.Time) *Dashboard {
	d := &Dashboard{
		Total:  len(logs),
		Counts: make(map[models.URLRisk]int, len(models.URLRisks)),
		Daily:  make([]DayCount, DashboardDays),
	}
	for _, risk := range models.URLRisks {
		d.Counts[risk] = 0
	}

	today := now.UTC().Truncate(24 * time.Hour)
	index := make(map[string]int, DashboardDays)
	for i := 0; i < DashboardDays; i++ {
		day := today.AddDate(0, 0, i-DashboardDays+1).Format("2006-01-02")
		d.Daily[i].Date = day
		index[day] = i
	}

	for _, l := range logs {
		d.Counts[l.RiskLevel]++

		i, ok := index[l.Timestamp.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		switch l.RiskLevel {
		case models.URLRiskLow:
			d.Daily[i].Low++
		case models.URLRiskMedium:
			d.Daily[i].Medium++
		case models.URLRiskHigh:
			d.Daily[i].High++
		}
	}
	return d
}
