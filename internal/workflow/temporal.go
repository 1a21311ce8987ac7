package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultSignalTimeout bounds a single signal delivery.
const DefaultSignalTimeout = 3 * time.Second

// signalClient is the part of the Temporal client used here.
// go.temporal.io/sdk/client.Client satisfies it.
type signalClient interface {
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

// TemporalSignaler sends signals through a Temporal client.
type TemporalSignaler struct {
	client  signalClient
	timeout time.Duration
}

// NewTemporalSignaler creates a TemporalSignaler. A non-positive timeout
// falls back to DefaultSignalTimeout.
func NewTemporalSignaler(c signalClient, timeout time.Duration) *TemporalSignaler {
	if timeout <= 0 {
		timeout = DefaultSignalTimeout
	}
	return &TemporalSignaler{client: c, timeout: timeout}
}

// Signal delivers one named signal to the given run. An empty runID targets
// the latest run of the workflow.
func (s *TemporalSignaler) Signal(ctx context.Context, workflowID, runID, name string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.SignalWorkflow(ctx, workflowID, runID, name, payload); err != nil {
		return fmt.Errorf("signal %s to workflow %s: %w", name, workflowID, err)
	}

	slog.Debug("workflow signalled",
		"workflow_id", workflowID,
		"run_id", runID,
		"signal", name,
	)
	return nil
}

// NoopSignaler drops every signal. It is used when no workflow engine is
// configured.
type NoopSignaler struct{}

// Signal implements the signaler contract without doing anything.
func (NoopSignaler) Signal(context.Context, string, string, string, any) error {
	return nil
}
