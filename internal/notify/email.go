package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/sla"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// UserLookup resolves directory users to e-mail addresses.
type UserLookup interface {
	GetUser(ctx context.Context, tenantID, userID string) (*domain.DirectoryUser, error)
}

// EmailChannel sends events addressed to a user through SES. Events with no
// recipient, and recipients without an active directory entry, are skipped.
type EmailChannel struct {
	client  sesAPI
	users   UserLookup
	from    string
	timeout time.Duration
}

// NewEmailChannel creates an e-mail channel sending from the given address.
// Each send is bounded by DefaultPublishTimeout.
func NewEmailChannel(client sesAPI, users UserLookup, from string) (*EmailChannel, error) {
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	return &EmailChannel{client: client, users: users, from: from, timeout: DefaultPublishTimeout}, nil
}

// NewSESClient creates an SES client from a loaded AWS config.
func NewSESClient(cfg aws.Config) *sesv2.Client {
	return sesv2.NewFromConfig(cfg)
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Deliver implements Channel.
func (c *EmailChannel) Deliver(ctx context.Context, event Event) error {
	if event.RecipientID == "" || event.Type == EventTaskCreated {
		return nil
	}

	user, err := c.users.GetUser(ctx, event.TenantID, event.RecipientID)
	if errors.Is(err, domain.ErrUserNotFound) {
		slog.Debug("no directory entry for recipient, skipping e-mail",
			"task_id", event.TaskID,
			"user_id", event.RecipientID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if !user.IsActive || user.Email == "" {
		return nil
	}

	subject, body := render(event, user)
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err = c.client.SendEmail(cctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send e-mail: %w", err)
	}
	return nil
}

func render(event Event, user *domain.DirectoryUser) (string, string) {
	var subject string
	switch event.Type {
	case EventTaskAssigned:
		subject = "Task assigned: " + event.Title
	case EventTaskEscalated:
		subject = "Task escalated: " + event.Title
	case EventTaskCompleted:
		subject = "Task completed: " + event.Title
	case EventSLAWarning:
		subject = "Task due soon: " + event.Title
	case EventSLABreach:
		subject = "Task overdue: " + event.Title
	default:
		subject = "Task update: " + event.Title
	}

	name := user.DisplayName
	if name == "" {
		name = user.UserID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "Task %q (%s, priority %s) is %s.\n", event.Title, event.TaskID, event.Priority, event.Status)
	if event.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", event.Reason)
	}
	if event.MinutesRemaining != nil {
		fmt.Fprintf(&b, "Time remaining: %s\n", sla.FormatRemaining(int64(*event.MinutesRemaining)*sla.Minute))
	}
	if event.DueAt != nil {
		fmt.Fprintf(&b, "Due: %s\n", event.DueAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return subject, b.String()
}
