package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := migratedStore(t)
	repo := NewTimelineRepository(store)

	base := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)

	require.NoError(t, repo.Append(domain.SubmissionEvent{
		SessionID: "session-1",
		DraftID:   "draft-1",
		Type:      "submission.started",
		State:     domain.SubmissionCreatingSale,
		Step:      domain.SagaStepCreateSale,
		Occurred:  base.Add(2 * time.Second),
	}))
	require.NoError(t, repo.Append(domain.SubmissionEvent{
		SessionID: "session-1",
		DraftID:   "draft-1",
		SaleID:    "sale-1",
		Type:      "sale.created",
		State:     domain.SubmissionCreatingSale,
		Step:      domain.SagaStepCreateSale,
		Occurred:  base,
	}))
	require.NoError(t, repo.Append(domain.SubmissionEvent{
		SessionID: "session-2",
		DraftID:   "draft-2",
		Type:      "submission.failed",
		State:     domain.SubmissionIdle,
		Reason:    "customer is required",
	}))

	events, err := repo.List("session-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "sale.created", events[0].Type)
	assert.Equal(t, "sale-1", events[0].SaleID)
	assert.True(t, events[0].Occurred.Equal(base))
	assert.Equal(t, domain.SagaStepCreateSale, events[1].Step)

	other, err := repo.List("session-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.False(t, other[0].Occurred.IsZero(), "zero occurred is filled on append")
	assert.Equal(t, "customer is required", other[0].Reason)

	missing, err := repo.List("unknown")
	require.NoError(t, err)
	assert.Empty(t, missing)
}
