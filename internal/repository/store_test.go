package repository_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/humantask/internal/database"
	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/repository"
)

// store is the contract both backends satisfy.
type store interface {
	GetByID(ctx context.Context, tenantID, taskID string, includeDeleted bool) (*domain.Task, error)
	Create(ctx context.Context, task *domain.Task, entry *domain.TaskHistoryEntry) error
	Update(ctx context.Context, task *domain.Task, expectedStatus domain.TaskStatus, entry *domain.TaskHistoryEntry) error
	Claim(ctx context.Context, tenantID, taskID, userID string, at time.Time, entry *domain.TaskHistoryEntry) (*domain.Task, error)
	HardDelete(ctx context.Context, tenantID, taskID string) error
	List(ctx context.Context, filters repository.TaskListFilters) ([]*domain.Task, int, error)
	ListHistory(ctx context.Context, tenantID, taskID string, order domain.HistoryOrder) ([]*domain.TaskHistoryEntry, error)
	FindEscalationCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error)
	FindWarningCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error)
	GetTenantStats(ctx context.Context, tenantID string, now time.Time) (*repository.TenantStats, error)

	ActiveMembers(ctx context.Context, tenantID, groupID string) ([]string, error)
	GetUser(ctx context.Context, tenantID, userID string) (*domain.DirectoryUser, error)
	UpsertUser(ctx context.Context, user domain.DirectoryUser) error
	AddGroupMember(ctx context.Context, tenantID, groupID, userID string) error
}

// pgStore joins the two Postgres repositories into one store.
type pgStore struct {
	*repository.TaskRepository
	*repository.DirectoryRepository
}

// StoreTestSuite runs the same behaviour checks against every backend.
type StoreTestSuite struct {
	suite.Suite
	newStore func(t *testing.T) store
	store    store
	ctx      context.Context
	now      time.Time
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
	// Postgres keeps microseconds.
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{
		newStore: func(*testing.T) store { return repository.NewMemoryStore() },
	})
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, database.Options{MaxConns: 12})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	suite.Run(t, &StoreTestSuite{
		newStore: func(t *testing.T) store {
			truncate(t, db.Pool())
			return pgStore{
				TaskRepository:      repository.NewTaskRepository(db.Pool()),
				DirectoryRepository: repository.NewDirectoryRepository(db.Pool()),
			}
		},
	})
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"TRUNCATE tasks, task_history, directory_users, group_members CASCADE")
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// Fixtures

func ptr[T any](v T) *T { return &v }

func (s *StoreTestSuite) newTask(tenantID string, mutate func(*domain.Task)) *domain.Task {
	task := &domain.Task{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Type:         "approval",
		Title:        "Approve invoice",
		Priority:     domain.TaskPriorityMedium,
		Status:       domain.TaskStatusPending,
		BreachAction: domain.BreachActionEscalate,
		Metadata:     map[string]any{"source": "erp"},
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
	if mutate != nil {
		mutate(task)
	}
	return task
}

func (s *StoreTestSuite) entry(task *domain.Task, action domain.HistoryAction, userID *string) *domain.TaskHistoryEntry {
	return &domain.TaskHistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		Action:    action,
		UserID:    userID,
		Data:      map[string]any{"status": string(task.Status)},
		CreatedAt: s.now,
	}
}

func (s *StoreTestSuite) create(tenantID string, mutate func(*domain.Task)) *domain.Task {
	task := s.newTask(tenantID, mutate)
	s.Require().NoError(s.store.Create(s.ctx, task, s.entry(task, domain.HistoryActionCreated, ptr("creator"))))
	return task
}

func ids(tasks []*domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

// Tasks

func (s *StoreTestSuite) TestCreateAndGet() {
	task := s.create("acme", func(t *domain.Task) {
		t.AssignedGroupID = ptr("finance")
		t.DueAt = ptr(s.now.Add(time.Hour))
		t.EscalationConfig = json.RawMessage(`[{"after":"30m","toGroupId":"managers"}]`)
	})

	got, err := s.store.GetByID(s.ctx, "acme", task.ID, false)
	s.Require().NoError(err)
	s.Equal(task.Title, got.Title)
	s.Equal(domain.TaskStatusPending, got.Status)
	s.Equal("finance", *got.AssignedGroupID)
	s.Nil(got.AssignedUserID)
	s.Require().NotNil(got.DueAt)
	s.True(got.DueAt.Equal(*task.DueAt))
	s.Equal("erp", got.Metadata["source"])
	s.JSONEq(`[{"after":"30m","toGroupId":"managers"}]`, string(got.EscalationConfig))
}

func (s *StoreTestSuite) TestGetOtherTenant() {
	task := s.create("acme", nil)

	_, err := s.store.GetByID(s.ctx, "globex", task.ID, false)
	s.ErrorIs(err, domain.ErrTaskNotFound)
}

func (s *StoreTestSuite) TestSoftDeletedHidden() {
	task := s.create("acme", nil)

	deleted := task.Clone()
	deleted.DeletedAt = ptr(s.now.Add(time.Minute))
	s.Require().NoError(s.store.Update(s.ctx, deleted, domain.TaskStatusPending,
		s.entry(deleted, domain.HistoryActionDeleted, ptr("admin"))))

	_, err := s.store.GetByID(s.ctx, "acme", task.ID, false)
	s.ErrorIs(err, domain.ErrTaskNotFound)

	got, err := s.store.GetByID(s.ctx, "acme", task.ID, true)
	s.Require().NoError(err)
	s.True(got.IsDeleted())

	// Deleted tasks cannot be mutated any further.
	again := got.Clone()
	again.Title = "changed"
	err = s.store.Update(s.ctx, again, domain.TaskStatusPending, s.entry(again, domain.HistoryActionCancelled, nil))
	s.ErrorIs(err, domain.ErrConcurrentUpdate)
}

func (s *StoreTestSuite) TestUpdateStatusConflict() {
	task := s.create("acme", nil)

	cancelled := task.Clone()
	cancelled.Status = domain.TaskStatusCancelled
	s.Require().NoError(s.store.Update(s.ctx, cancelled, domain.TaskStatusPending,
		s.entry(cancelled, domain.HistoryActionCancelled, ptr("admin"))))

	stale := task.Clone()
	stale.Status = domain.TaskStatusExpired
	err := s.store.Update(s.ctx, stale, domain.TaskStatusPending, s.entry(stale, domain.HistoryActionExpired, nil))
	s.ErrorIs(err, domain.ErrConcurrentUpdate)

	got, err := s.store.GetByID(s.ctx, "acme", task.ID, false)
	s.Require().NoError(err)
	s.Equal(domain.TaskStatusCancelled, got.Status)

	history, err := s.store.ListHistory(s.ctx, "acme", task.ID, domain.HistoryOrderAsc)
	s.Require().NoError(err)
	s.Len(history, 2, "failed update must not write history")
}

func (s *StoreTestSuite) TestClaim() {
	task := s.create("acme", func(t *domain.Task) {
		t.Status = domain.TaskStatusAssigned
		t.AssignedUserID = ptr("alice")
	})
	at := s.now.Add(5 * time.Minute)

	claimed, err := s.store.Claim(s.ctx, "acme", task.ID, "alice", at, s.entry(task, domain.HistoryActionClaimed, ptr("alice")))
	s.Require().NoError(err)
	s.Equal(domain.TaskStatusInProgress, claimed.Status)
	s.Equal("alice", *claimed.ClaimedBy)
	s.True(claimed.ClaimedAt.Equal(at))

	_, err = s.store.Claim(s.ctx, "acme", task.ID, "bob", at, s.entry(task, domain.HistoryActionClaimed, ptr("bob")))
	s.ErrorIs(err, domain.ErrClaimConflict)

	history, err := s.store.ListHistory(s.ctx, "acme", task.ID, domain.HistoryOrderAsc)
	s.Require().NoError(err)
	s.Len(history, 2)
}

func (s *StoreTestSuite) TestClaimTerminal() {
	task := s.create("acme", func(t *domain.Task) { t.Status = domain.TaskStatusCompleted })

	_, err := s.store.Claim(s.ctx, "acme", task.ID, "alice", s.now, s.entry(task, domain.HistoryActionClaimed, ptr("alice")))
	s.ErrorIs(err, domain.ErrClaimConflict)
}

func (s *StoreTestSuite) TestConcurrentClaim() {
	task := s.create("acme", nil)

	const claimants = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := range claimants {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := string(rune('a' + i))
			_, err := s.store.Claim(s.ctx, "acme", task.ID, user, s.now, s.entry(task, domain.HistoryActionClaimed, &user))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, winners)
}

func (s *StoreTestSuite) TestHistoryOrder() {
	task := s.create("acme", nil)

	assigned := task.Clone()
	assigned.Status = domain.TaskStatusAssigned
	assigned.AssignedUserID = ptr("alice")
	s.Require().NoError(s.store.Update(s.ctx, assigned, domain.TaskStatusPending,
		s.entry(assigned, domain.HistoryActionReassigned, ptr("admin"))))

	asc, err := s.store.ListHistory(s.ctx, "acme", task.ID, domain.HistoryOrderAsc)
	s.Require().NoError(err)
	s.Require().Len(asc, 2)
	s.Equal(domain.HistoryActionCreated, asc[0].Action)
	s.Equal(domain.HistoryActionReassigned, asc[1].Action)
	s.Equal("assigned", asc[1].Data["status"])

	desc, err := s.store.ListHistory(s.ctx, "acme", task.ID, domain.HistoryOrderDesc)
	s.Require().NoError(err)
	s.Require().Len(desc, 2)
	s.Equal(domain.HistoryActionReassigned, desc[0].Action)

	other, err := s.store.ListHistory(s.ctx, "globex", task.ID, domain.HistoryOrderAsc)
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *StoreTestSuite) TestHardDelete() {
	task := s.create("acme", nil)

	s.ErrorIs(s.store.HardDelete(s.ctx, "globex", task.ID), domain.ErrTaskNotFound)
	s.Require().NoError(s.store.HardDelete(s.ctx, "acme", task.ID))

	_, err := s.store.GetByID(s.ctx, "acme", task.ID, true)
	s.ErrorIs(err, domain.ErrTaskNotFound)

	history, err := s.store.ListHistory(s.ctx, "acme", task.ID, domain.HistoryOrderAsc)
	s.Require().NoError(err)
	s.Empty(history)

	s.ErrorIs(s.store.HardDelete(s.ctx, "acme", task.ID), domain.ErrTaskNotFound)
}

func (s *StoreTestSuite) TestList() {
	low := s.create("acme", func(t *domain.Task) { t.Priority = domain.TaskPriorityLow })
	urgent := s.create("acme", func(t *domain.Task) {
		t.Priority = domain.TaskPriorityUrgent
		t.CreatedAt = s.now.Add(time.Minute)
		t.AssignedUserID = ptr("alice")
		t.Status = domain.TaskStatusAssigned
	})
	overdue := s.create("acme", func(t *domain.Task) {
		t.Priority = domain.TaskPriorityHigh
		t.CreatedAt = s.now.Add(2 * time.Minute)
		t.DueAt = ptr(s.now.Add(-time.Minute))
	})
	s.create("globex", nil)

	base := repository.TaskListFilters{TenantID: "acme", Now: s.now, Limit: 50}

	s.Run("default sort by priority", func() {
		tasks, total, err := s.store.List(s.ctx, base)
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Equal([]string{urgent.ID, overdue.ID, low.ID}, ids(tasks))
	})

	s.Run("descending created_at with pagination", func() {
		f := base
		f.Sort = []string{"-created_at"}
		f.Limit = 2
		f.Offset = 1
		tasks, total, err := s.store.List(s.ctx, f)
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Equal([]string{urgent.ID, low.ID}, ids(tasks))
	})

	s.Run("status filter", func() {
		f := base
		f.Statuses = []domain.TaskStatus{domain.TaskStatusAssigned}
		tasks, total, err := s.store.List(s.ctx, f)
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal([]string{urgent.ID}, ids(tasks))
	})

	s.Run("assigned user filter", func() {
		f := base
		f.AssignedUserID = ptr("alice")
		tasks, _, err := s.store.List(s.ctx, f)
		s.Require().NoError(err)
		s.Equal([]string{urgent.ID}, ids(tasks))
	})

	s.Run("overdue filter", func() {
		f := base
		f.Overdue = true
		tasks, _, err := s.store.List(s.ctx, f)
		s.Require().NoError(err)
		s.Equal([]string{overdue.ID}, ids(tasks))
	})

	s.Run("unknown sort field", func() {
		f := base
		f.Sort = []string{"title"}
		_, _, err := s.store.List(s.ctx, f)
		s.ErrorIs(err, domain.ErrValidation)
	})
}

func (s *StoreTestSuite) TestFindEscalationCandidates() {
	overdue := s.create("acme", func(t *domain.Task) { t.DueAt = ptr(s.now.Add(-time.Minute)) })
	withChain := s.create("acme", func(t *domain.Task) {
		t.CreatedAt = s.now.Add(time.Second)
		t.DueAt = ptr(s.now.Add(time.Hour))
		t.EscalationConfig = json.RawMessage(`[{"after":"30m","toUserId":"bob"}]`)
	})
	s.create("acme", func(t *domain.Task) {
		t.DueAt = ptr(s.now.Add(time.Hour))
		t.EscalationConfig = json.RawMessage(`[{"after":"30m","toUserId":"bob"}]`)
		t.EscalationLevel = 1
	})
	s.create("acme", func(t *domain.Task) {
		t.Status = domain.TaskStatusCompleted
		t.DueAt = ptr(s.now.Add(-time.Minute))
	})
	s.create("acme", func(t *domain.Task) {
		t.Status = domain.TaskStatusEscalated
		t.DueAt = ptr(s.now.Add(-time.Minute))
	})
	s.create("acme", func(t *domain.Task) { t.DueAt = ptr(s.now.Add(time.Hour)) })

	tasks, err := s.store.FindEscalationCandidates(s.ctx, "acme", s.now)
	s.Require().NoError(err)
	s.Equal([]string{overdue.ID, withChain.ID}, ids(tasks))

	other, err := s.store.FindEscalationCandidates(s.ctx, "globex", s.now)
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *StoreTestSuite) TestFindWarningCandidates() {
	due := s.create("acme", func(t *domain.Task) {
		t.WarnAt = ptr(s.now.Add(-time.Minute))
		t.DueAt = ptr(s.now.Add(10 * time.Minute))
	})
	s.create("acme", func(t *domain.Task) {
		t.WarnAt = ptr(s.now.Add(-time.Minute))
		t.WarnedAt = ptr(s.now.Add(-time.Second))
		t.DueAt = ptr(s.now.Add(10 * time.Minute))
	})
	s.create("acme", func(t *domain.Task) {
		t.WarnAt = ptr(s.now.Add(time.Minute))
		t.DueAt = ptr(s.now.Add(10 * time.Minute))
	})
	s.create("acme", func(t *domain.Task) {
		t.WarnAt = ptr(s.now.Add(-time.Hour))
		t.DueAt = ptr(s.now.Add(-time.Minute))
	})

	tasks, err := s.store.FindWarningCandidates(s.ctx, "acme", s.now)
	s.Require().NoError(err)
	s.Equal([]string{due.ID}, ids(tasks))
}

func (s *StoreTestSuite) TestTenantStats() {
	s.create("acme", nil)
	s.create("acme", func(t *domain.Task) { t.DueAt = ptr(s.now.Add(-time.Minute)) })
	s.create("acme", func(t *domain.Task) { t.Status = domain.TaskStatusEscalated })
	s.create("acme", func(t *domain.Task) {
		t.Status = domain.TaskStatusCompleted
		t.DueAt = ptr(s.now.Add(-time.Hour))
	})
	s.create("acme", func(t *domain.Task) { t.DeletedAt = ptr(s.now) })
	s.create("globex", nil)

	stats, err := s.store.GetTenantStats(s.ctx, "acme", s.now)
	s.Require().NoError(err)
	s.Equal(4, stats.Total)
	s.Equal(2, stats.TasksByStatus[domain.TaskStatusPending])
	s.Equal(1, stats.TasksByStatus[domain.TaskStatusCompleted])
	s.Equal(1, stats.OverdueCount)
	s.Equal(1, stats.EscalatedCount)
}

// Directory

func (s *StoreTestSuite) TestDirectory() {
	s.Require().NoError(s.store.UpsertUser(s.ctx, domain.DirectoryUser{
		TenantID: "acme", UserID: "alice", Email: "alice@acme.test", DisplayName: "Alice", IsActive: true,
	}))
	s.Require().NoError(s.store.UpsertUser(s.ctx, domain.DirectoryUser{
		TenantID: "acme", UserID: "carol", Email: "carol@acme.test", IsActive: false,
	}))

	for _, userID := range []string{"carol", "bob", "alice", "alice"} {
		s.Require().NoError(s.store.AddGroupMember(s.ctx, "acme", "finance", userID))
	}

	members, err := s.store.ActiveMembers(s.ctx, "acme", "finance")
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob"}, members, "inactive users are excluded, unknown users count as active")

	user, err := s.store.GetUser(s.ctx, "acme", "alice")
	s.Require().NoError(err)
	s.Equal("alice@acme.test", user.Email)
	s.True(user.IsActive)

	s.Require().NoError(s.store.UpsertUser(s.ctx, domain.DirectoryUser{
		TenantID: "acme", UserID: "alice", Email: "a@acme.test", IsActive: true,
	}))
	user, err = s.store.GetUser(s.ctx, "acme", "alice")
	s.Require().NoError(err)
	s.Equal("a@acme.test", user.Email)

	_, err = s.store.GetUser(s.ctx, "globex", "alice")
	s.ErrorIs(err, domain.ErrUserNotFound)

	none, err := s.store.ActiveMembers(s.ctx, "globex", "finance")
	s.Require().NoError(err)
	s.Empty(none)
}
