package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/shieldbot/internal/models"
)

// Malformed ids are rejected before any query, so a store without a
// connection is enough here.
func TestPostgresStorage_MalformedIDIsNotFound(t *testing.T) {
	s := &PostgresStorage{}
	ctx := context.Background()

	for _, id := range []string{"", "not-a-uuid", "123", "../etc"} {
		_, err := s.GetMessage(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)

		_, err = s.CommitVerdict(ctx, id, models.Verdict{RiskLevel: models.RiskSafe}, time.Now())
		assert.ErrorIs(t, err, ErrNotFound, id)

		assert.ErrorIs(t, s.DeleteMessage(ctx, id), ErrNotFound, id)
	}
}

func TestValidMessageID(t *testing.T) {
	assert.True(t, validMessageID("6f1c2a3e-2b1d-4c55-9a0e-1f2e3d4c5b6a"))
	assert.False(t, validMessageID("6f1c2a3e"))
}
