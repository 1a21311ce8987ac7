package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"

	"github.com/mtlprog/humantask/internal/workflow"
)

func TestTemporalSignaler_Signal(t *testing.T) {
	client := &mocks.Client{}
	payload := workflow.TaskCompleted{
		TaskID:      "task-1",
		FormData:    map[string]any{"approved": true},
		CompletedBy: "alice",
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	client.On("SignalWorkflow", mock.Anything, "wf-1", "run-1", workflow.SignalTaskCompleted, payload).
		Return(nil).Once()

	signaler := workflow.NewTemporalSignaler(client, time.Second)
	err := signaler.Signal(context.Background(), "wf-1", "run-1", workflow.SignalTaskCompleted, payload)

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestTemporalSignaler_AppliesTimeout(t *testing.T) {
	client := &mocks.Client{}
	client.On("SignalWorkflow",
		mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}),
		"wf-1", "", workflow.SignalTaskCancelled, mock.Anything,
	).Return(nil).Once()

	signaler := workflow.NewTemporalSignaler(client, 0)
	err := signaler.Signal(context.Background(), "wf-1", "", workflow.SignalTaskCancelled, workflow.TaskCancelled{TaskID: "task-1"})

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestTemporalSignaler_WrapsError(t *testing.T) {
	client := &mocks.Client{}
	notFound := errors.New("workflow execution already completed")
	client.On("SignalWorkflow", mock.Anything, "wf-1", "run-1", workflow.SignalTaskEscalated, mock.Anything).
		Return(notFound).Once()

	signaler := workflow.NewTemporalSignaler(client, time.Second)
	err := signaler.Signal(context.Background(), "wf-1", "run-1", workflow.SignalTaskEscalated, workflow.TaskEscalated{TaskID: "task-1"})

	assert.ErrorIs(t, err, notFound)
	assert.Contains(t, err.Error(), "taskEscalated")
}
