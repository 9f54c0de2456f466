package assembler

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/mocks"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence/blobstore"
	"github.com/loomwork/loom/pkg/providers/blob"
	"github.com/loomwork/loom/pkg/providers/mail"
)

func newStore(t *testing.T) *blobstore.Store {
	t.Helper()

	blobs, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)

	return blobstore.New(blobs)
}

func digestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:        "news-digest",
		Name:      "News Digest",
		Variables: map[string]any{"tone": "concise"},
	}
}

func TestAssemble_FirstRunUsesEmptyState(t *testing.T) {
	store := newStore(t)
	a := NewAssembler(store.States(), nil, slog.Default())

	trigger := &models.Trigger{
		ID:         "trg-1",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"file": "digest.md"},
	}

	runContext, err := a.Assemble(t.Context(), digestWorkflow(), trigger)
	require.NoError(t, err)

	assert.Equal(t, int64(0), runContext.State.Version)
	assert.Empty(t, runContext.State.Data)
	assert.Equal(t, "news-digest", runContext.WorkflowID)
	assert.Equal(t, "digest.md", runContext.TriggerData["file"])
	assert.Equal(t, "concise", runContext.Variables["tone"])
	assert.NotEmpty(t, runContext.RunID)
}

func TestAssemble_LoadsLatestState(t *testing.T) {
	store := newStore(t)

	state := models.EmptyState("news-digest").Next(map[string]any{"digest": "day one"})
	require.NoError(t, store.States().Commit(t.Context(), state, 0))

	a := NewAssembler(store.States(), nil, slog.Default())

	runContext, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-2",
		WorkflowID: "news-digest",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), runContext.State.Version)
	assert.Equal(t, "day one", runContext.State.Data["digest"])
}

func TestAssemble_FetchesReferencedMessage(t *testing.T) {
	store := newStore(t)

	mailClient := &mocks.MockMailClient{}
	mailClient.On("FetchMessage", mock.Anything, "m-77").Return(&mail.Message{
		MessageRef: mail.MessageRef{ID: "m-77", Subject: "Morning wrap"},
		Body:       "markets were flat",
	}, nil)

	a := NewAssembler(store.States(), mailClient, slog.Default())

	runContext, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-3",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"message_id": "m-77"},
	})
	require.NoError(t, err)

	require.Len(t, runContext.Documents, 1)
	assert.Equal(t, "Morning wrap", runContext.Documents[0].Subject)
	assert.Equal(t, "markets were flat", runContext.Documents[0].Body)
	mailClient.AssertExpectations(t)
}

func TestAssemble_RetriesTransientFetchFailure(t *testing.T) {
	store := newStore(t)

	mailClient := &mocks.MockMailClient{}
	mailClient.On("FetchMessage", mock.Anything, "m-1").
		Return(nil, errors.New("connection reset")).Once()
	mailClient.On("FetchMessage", mock.Anything, "m-1").Return(&mail.Message{
		MessageRef: mail.MessageRef{ID: "m-1"},
		Body:       "recovered",
	}, nil).Once()

	a := NewAssembler(store.States(), mailClient, slog.Default())

	runContext, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-4",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"message_id": "m-1"},
	})
	require.NoError(t, err)

	require.Len(t, runContext.Documents, 1)
	assert.Equal(t, "recovered", runContext.Documents[0].Body)
	mailClient.AssertExpectations(t)
}

func TestAssemble_UnavailableWhenFetchKeepsFailing(t *testing.T) {
	store := newStore(t)

	mailClient := &mocks.MockMailClient{}
	mailClient.On("FetchMessage", mock.Anything, "m-1").
		Return(nil, errors.New("upstream down"))

	a := NewAssembler(store.States(), mailClient, slog.Default())

	_, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-5",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"message_id": "m-1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextUnavailable)
}

func TestAssemble_MissingMessageIsNotRetried(t *testing.T) {
	store := newStore(t)

	mailClient := &mocks.MockMailClient{}
	mailClient.On("FetchMessage", mock.Anything, "gone").
		Return(nil, mail.ErrMessageNotFound)

	a := NewAssembler(store.States(), mailClient, slog.Default())

	_, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-6",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"message_id": "gone"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextUnavailable)
	mailClient.AssertNumberOfCalls(t, "FetchMessage", 1)
}

func TestAssemble_MultipleMessageIDs(t *testing.T) {
	store := newStore(t)

	mailClient := &mocks.MockMailClient{}
	mailClient.On("FetchMessage", mock.Anything, "a").
		Return(&mail.Message{MessageRef: mail.MessageRef{ID: "a"}, Body: "one"}, nil)
	mailClient.On("FetchMessage", mock.Anything, "b").
		Return(&mail.Message{MessageRef: mail.MessageRef{ID: "b"}, Body: "two"}, nil)

	a := NewAssembler(store.States(), mailClient, slog.Default())

	runContext, err := a.Assemble(t.Context(), digestWorkflow(), &models.Trigger{
		ID:         "trg-7",
		WorkflowID: "news-digest",
		Payload:    map[string]any{"message_ids": []any{"a", "b"}},
	})
	require.NoError(t, err)

	require.Len(t, runContext.Documents, 2)
	assert.Equal(t, "one", runContext.Documents[0].Body)
	assert.Equal(t, "two", runContext.Documents[1].Body)
}
