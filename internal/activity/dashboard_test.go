package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/shieldbot/internal/models"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	at := func(daysAgo int, risk models.URLRisk) *models.ActivityLog {
		return &models.ActivityLog{RiskLevel: risk, Timestamp: now.AddDate(0, 0, -daysAgo)}
	}

	logs := []*models.ActivityLog{
		at(0, models.URLRiskHigh),
		at(0, models.URLRiskLow),
		at(2, models.URLRiskMedium),
		at(6, models.URLRiskLow),
		at(7, models.URLRiskHigh),
		at(30, models.URLRiskLow),
	}

	d := summarize(logs, now)
	assert.Equal(t, 6, d.Total)
	assert.Equal(t, 3, d.Counts[models.URLRiskLow])
	assert.Equal(t, 1, d.Counts[models.URLRiskMedium])
	assert.Equal(t, 2, d.Counts[models.URLRiskHigh])

	require.Len(t, d.Daily, DashboardDays)
	assert.Equal(t, "2024-05-04", d.Daily[0].Date)
	assert.Equal(t, "2024-05-10", d.Daily[6].Date)
	assert.Equal(t, DayCount{Date: "2024-05-04", Low: 1}, d.Daily[0])
	assert.Equal(t, DayCount{Date: "2024-05-08", Medium: 1}, d.Daily[4])
	assert.Equal(t, DayCount{Date: "2024-05-10", Low: 1, High: 1}, d.Daily[6])
}

func TestSummarize_Empty(t *testing.T) {
	d := summarize(nil, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	assert.Zero(t, d.Total)
	assert.Len(t, d.Counts, 3)
	assert.Len(t, d.Daily, DashboardDays)
}
