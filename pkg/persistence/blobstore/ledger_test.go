package blobstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
)

func testTrigger(id string, createdAt time.Time) *models.Trigger {
	return &models.Trigger{
		ID:         id,
		WorkflowID: "news-digest",
		Source:     "blob",
		CreatedAt:  createdAt,
		Payload:    map[string]any{"file": id + ".md"},
	}
}

func TestTriggerLedger_ObserveDeduplicates(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	trigger := testTrigger("trg-1", time.Now().UTC())

	record, created, err := ledger.Observe(t.Context(), trigger)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.TriggerStatusPending, record.Status)

	// Same id seen again on a later poll.
	record, created, err = ledger.Observe(t.Context(), trigger)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.TriggerStatusPending, record.Status)
}

func TestTriggerLedger_ConsumedTriggerStaysConsumed(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	trigger := testTrigger("trg-1", time.Now().UTC())

	_, _, err := ledger.Observe(t.Context(), trigger)
	require.NoError(t, err)

	_, err = ledger.MarkProcessing(t.Context(), "news-digest", "trg-1", 3)
	require.NoError(t, err)
	require.NoError(t, ledger.MarkConsumed(t.Context(), "news-digest", "trg-1"))

	// Re-observing a consumed trigger must not resurrect it.
	record, created, err := ledger.Observe(t.Context(), trigger)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.TriggerStatusConsumed, record.Status)
}

func TestTriggerLedger_MarkProcessingRecordsBaseVersion(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	_, _, err := ledger.Observe(t.Context(), testTrigger("trg-1", time.Now().UTC()))
	require.NoError(t, err)

	record, err := ledger.MarkProcessing(t.Context(), "news-digest", "trg-1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusProcessing, record.Status)
	assert.Equal(t, int64(3), record.BaseVersion)
}

func TestTriggerLedger_MarkFailedIncrementsAttempts(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	_, _, err := ledger.Observe(t.Context(), testTrigger("trg-1", time.Now().UTC()))
	require.NoError(t, err)

	_, err = ledger.MarkProcessing(t.Context(), "news-digest", "trg-1", 0)
	require.NoError(t, err)

	record, err := ledger.MarkFailed(t.Context(), "news-digest", "trg-1", "provider down", 3)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerStatusFailedRetryable, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, "provider down", record.LastError)
}

func TestTriggerLedger_BudgetExhaustionAbandons(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	_, _, err := ledger.Observe(t.Context(), testTrigger("trg-1", time.Now().UTC()))
	require.NoError(t, err)

	budget := 2

	for attempt := range budget {
		_, err = ledger.MarkProcessing(t.Context(), "news-digest", "trg-1", 0)
		require.NoError(t, err)

		record, err := ledger.MarkFailed(t.Context(), "news-digest", "trg-1", "still down", budget)
		require.NoError(t, err)

		if attempt < budget-1 {
			require.Equal(t, models.TriggerStatusFailedRetryable, record.Status)
			require.NoError(t, ledger.Release(t.Context(), "news-digest", "trg-1"))
		} else {
			require.Equal(t, models.TriggerStatusAbandoned, record.Status)
		}
	}

	// Abandoned is terminal: no release back to pending.
	err = ledger.Release(t.Context(), "news-digest", "trg-1")
	assert.ErrorIs(t, err, persistence.ErrInvalidTransition)

	abandoned, err := ledger.Abandoned(t.Context(), "news-digest")
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "trg-1", abandoned[0].ID)
	assert.Equal(t, budget, abandoned[0].Attempts)
}

func TestTriggerLedger_PendingOrderedByCreation(t *testing.T) {
	store := newTestStore(t)
	ledger := store.Triggers()

	base := time.Now().UTC()

	_, _, err := ledger.Observe(t.Context(), testTrigger("trg-late", base.Add(time.Minute)))
	require.NoError(t, err)
	_, _, err = ledger.Observe(t.Context(), testTrigger("trg-early", base))
	require.NoError(t, err)

	pending, err := ledger.Pending(t.Context(), "news-digest")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "trg-early", pending[0].ID)
	assert.Equal(t, "trg-late", pending[1].ID)
}

func TestTriggerLedger_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Triggers().Get(t.Context(), "news-digest", "missing")
	assert.ErrorIs(t, err, persistence.ErrTriggerNotFound)
	assert.True(t, persistence.IsTriggerNotFound(err))
}
