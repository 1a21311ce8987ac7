package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/repository"
)

type recordingChannel struct {
	name   string
	err    error
	events []Event
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, ev Event) error {
	c.events = append(c.events, ev)
	return c.err
}

type fakeWriter struct {
	msgs     []kgo.Message
	deadline bool
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kgo.Message) error {
	_, w.deadline = ctx.Deadline()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, in)
	return &sesv2.SendEmailOutput{}, args.Error(0)
}

func sampleTask() *domain.Task {
	alice := "alice"
	ops := "ops"
	due := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Task{
		ID:              "task-1",
		TenantID:        "tenant-a",
		Type:            "approval",
		Title:           "Approve invoice",
		Priority:        domain.TaskPriorityHigh,
		Status:          domain.TaskStatusAssigned,
		AssignedUserID:  &alice,
		AssignedGroupID: &ops,
		DueAt:           &due,
	}
}

func TestDispatcher_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	broken := &recordingChannel{name: "broken", err: errors.New("unreachable")}
	d := NewDispatcher(broken, ok)

	err := d.TaskEscalated(context.Background(), sampleTask(), "stuck")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: unreachable")

	require.Len(t, ok.events, 1)
	ev := ok.events[0]
	assert.Equal(t, EventTaskEscalated, ev.Type)
	assert.Equal(t, "stuck", ev.Reason)
	assert.Equal(t, "alice", ev.RecipientID)
	assert.Equal(t, "ops", ev.AssignedGroupID)
}

func TestDispatcher_EscalationNoticeAddressesTarget(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcher(ch)
	ctx := context.Background()

	require.NoError(t, d.EscalationNotice(ctx, sampleTask(), domain.Target{UserID: "manager"}, "please chase"))
	require.NoError(t, d.EscalationNotice(ctx, sampleTask(), domain.Target{GroupID: "leads"}, "please chase"))

	require.Len(t, ch.events, 2)
	assert.Equal(t, EventTaskEscalated, ch.events[0].Type)
	assert.Equal(t, "manager", ch.events[0].RecipientID)
	assert.Equal(t, "please chase", ch.events[0].Reason)
	assert.Empty(t, ch.events[1].RecipientID, "a group notice has no single recipient")
	assert.Equal(t, "leads", ch.events[1].RecipientGroupID)
}

func TestDispatcher_EventFields(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := NewDispatcher(ch)
	ctx := context.Background()
	task := sampleTask()
	bob := "bob"
	task.ClaimedBy = &bob

	require.NoError(t, d.TaskAssigned(ctx, task, "carol"))
	require.NoError(t, d.SLAWarning(ctx, task, 12))
	require.NoError(t, d.SLABreach(ctx, task))

	require.Len(t, ch.events, 3)
	assert.Equal(t, "carol", ch.events[0].RecipientID)
	assert.Equal(t, "bob", ch.events[1].RecipientID, "the claimant is the recipient")
	require.NotNil(t, ch.events[1].MinutesRemaining)
	assert.Equal(t, 12, *ch.events[1].MinutesRemaining)
	assert.Equal(t, EventSLABreach, ch.events[2].Type)
}

func TestKafkaChannel_Deliver(t *testing.T) {
	w := &fakeWriter{}
	ch := NewKafkaChannel(w, 0)
	d := NewDispatcher(ch)

	require.NoError(t, d.TaskCompleted(context.Background(), sampleTask()))

	require.Len(t, w.msgs, 1)
	assert.True(t, w.deadline)
	msg := w.msgs[0]
	assert.Equal(t, "task-1", string(msg.Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventTaskCompleted, ev.Type)
	assert.Equal(t, "tenant-a", ev.TenantID)
	assert.Equal(t, "taskCompleted", string(msg.Headers[0].Value))
}

func TestKafkaChannel_WriteError(t *testing.T) {
	ch := NewKafkaChannel(&fakeWriter{err: errors.New("leader not available")}, time.Second)
	err := NewDispatcher(ch).TaskCreated(context.Background(), sampleTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: leader not available")
}

func TestNewKafkaWriter(t *testing.T) {
	w, err := NewKafkaWriter(" broker-1:9092, ,broker-2:9092", "tasks")
	require.NoError(t, err)
	assert.Equal(t, "tasks", w.Topic)
	assert.IsType(t, &kgo.LeastBytes{}, w.Balancer)
	assert.Equal(t, kgo.RequireOne, w.RequiredAcks)

	_, err = NewKafkaWriter("", "tasks")
	assert.Error(t, err)
	_, err = NewKafkaWriter("localhost:9092", "")
	assert.Error(t, err)
}

func TestEmailChannel(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryStore()
	require.NoError(t, users.UpsertUser(ctx, domain.DirectoryUser{
		TenantID: "tenant-a", UserID: "alice", Email: "alice@example.com", DisplayName: "Alice", IsActive: true,
	}))
	require.NoError(t, users.UpsertUser(ctx, domain.DirectoryUser{
		TenantID: "tenant-a", UserID: "gone", Email: "gone@example.com", IsActive: false,
	}))

	ses := &mockSES{}
	bounded := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
	ses.On("SendEmail", bounded, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return *in.FromEmailAddress == "tasks@example.com" &&
			in.Destination.ToAddresses[0] == "alice@example.com" &&
			*in.Content.Simple.Subject.Data == "Task due soon: Approve invoice"
	})).Return(nil).Once()

	ch, err := NewEmailChannel(ses, users, "tasks@example.com")
	require.NoError(t, err)
	d := NewDispatcher(ch)

	require.NoError(t, d.SLAWarning(ctx, sampleTask(), 30))

	// Skipped: creation events, unknown and inactive users.
	require.NoError(t, d.TaskCreated(ctx, sampleTask()))
	require.NoError(t, d.TaskAssigned(ctx, sampleTask(), "stranger"))
	require.NoError(t, d.TaskAssigned(ctx, sampleTask(), "gone"))

	ses.AssertExpectations(t)

	_, err = NewEmailChannel(ses, users, "")
	assert.Error(t, err)
}

func TestEmailChannel_SendError(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryStore()
	require.NoError(t, users.UpsertUser(ctx, domain.DirectoryUser{
		TenantID: "tenant-a", UserID: "alice", Email: "alice@example.com", IsActive: true,
	}))

	ses := &mockSES{}
	ses.On("SendEmail", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	ch, err := NewEmailChannel(ses, users, "tasks@example.com")
	require.NoError(t, err)

	err = ch.Deliver(ctx, newEvent(EventSLABreach, sampleTask(), time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestRender(t *testing.T) {
	minutes := 90
	ev := newEvent(EventSLAWarning, sampleTask(), time.Now())
	ev.MinutesRemaining = &minutes

	subject, body := render(ev, &domain.DirectoryUser{UserID: "alice"})
	assert.Equal(t, "Task due soon: Approve invoice", subject)
	assert.Contains(t, body, "Hello alice,")
	assert.Contains(t, body, "Time remaining: 1h 30m")
	assert.Contains(t, body, "Due: 2026-04-01 10:00 UTC")
}

func TestLogChannel(t *testing.T) {
	assert.NoError(t, LogChannel{}.Deliver(context.Background(), newEvent(EventTaskCreated, sampleTask(), time.Now())))
	assert.Equal(t, "log", LogChannel{}.Name())
}
