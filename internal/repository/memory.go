package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/escalation"
)

// MemoryStore keeps tasks, history and the directory in process memory.
// It satisfies the same contract as TaskRepository and DirectoryRepository
// and is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	history map[string][]*domain.TaskHistoryEntry
	users   map[string]domain.DirectoryUser
	groups  map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]*domain.Task),
		history: make(map[string][]*domain.TaskHistoryEntry),
		users:   make(map[string]domain.DirectoryUser),
		groups:  make(map[string][]string),
	}
}

func directoryKey(tenantID, id string) string {
	return tenantID + "\x00" + id
}

func (m *MemoryStore) lookup(tenantID, taskID string, includeDeleted bool) (*domain.Task, bool) {
	task, ok := m.tasks[taskID]
	if !ok || task.TenantID != tenantID {
		return nil, false
	}
	if task.IsDeleted() && !includeDeleted {
		return nil, false
	}
	return task, true
}

func (m *MemoryStore) appendHistory(entry *domain.TaskHistoryEntry) {
	stored := *entry
	m.history[entry.TaskID] = append(m.history[entry.TaskID], &stored)
}

// GetByID retrieves a task by ID within a tenant.
func (m *MemoryStore) GetByID(_ context.Context, tenantID, taskID string, includeDeleted bool) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.lookup(tenantID, taskID, includeDeleted)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Create inserts a task together with its creation history entry.
func (m *MemoryStore) Create(_ context.Context, task *domain.Task, entry *domain.TaskHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[task.ID] = task.Clone()
	m.appendHistory(entry)
	return nil
}

// Update writes the task and appends entry if the stored task still has
// expectedStatus and is not soft-deleted.
func (m *MemoryStore) Update(
	_ context.Context,
	task *domain.Task,
	expectedStatus domain.TaskStatus,
	entry *domain.TaskHistoryEntry,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lookup(task.TenantID, task.ID, false)
	if !ok || current.Status != expectedStatus {
		return domain.ErrConcurrentUpdate
	}

	m.tasks[task.ID] = task.Clone()
	m.appendHistory(entry)
	return nil
}

// Claim atomically sets the claimant if the task has none and is claimable.
func (m *MemoryStore) Claim(
	_ context.Context,
	tenantID, taskID, userID string,
	at time.Time,
	entry *domain.TaskHistoryEntry,
) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.lookup(tenantID, taskID, false)
	if !ok || task.IsClaimed() || !task.Status.In(domain.TaskStatusPending, domain.TaskStatusAssigned) {
		return nil, domain.ErrClaimConflict
	}

	task.Status = domain.TaskStatusInProgress
	task.ClaimedBy = &userID
	task.ClaimedAt = &at
	task.UpdatedAt = at
	m.appendHistory(entry)
	return task.Clone(), nil
}

// HardDelete removes a task and its history.
func (m *MemoryStore) HardDelete(_ context.Context, tenantID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(tenantID, taskID, true); !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, taskID)
	delete(m.history, taskID)
	return nil
}

// ListHistory returns the history of a task in insertion order or in reverse.
func (m *MemoryStore) ListHistory(
	_ context.Context,
	tenantID, taskID string,
	order domain.HistoryOrder,
) ([]*domain.TaskHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*domain.TaskHistoryEntry
	for _, e := range m.history[taskID] {
		if e.TenantID != tenantID {
			continue
		}
		c := *e
		entries = append(entries, &c)
	}
	if order == domain.HistoryOrderDesc {
		slices.Reverse(entries)
	}
	return entries, nil
}

func (m *MemoryStore) matching(keep func(*domain.Task) bool) []*domain.Task {
	var out []*domain.Task
	for _, task := range m.tasks {
		if keep(task) {
			out = append(out, task.Clone())
		}
	}
	return out
}

// FindEscalationCandidates finds open tasks that are past due or still have
// unexecuted escalation steps.
func (m *MemoryStore) FindEscalationCandidates(_ context.Context, tenantID string, now time.Time) ([]*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := m.matching(func(t *domain.Task) bool {
		if t.TenantID != tenantID || t.IsDeleted() || !t.Status.In(domain.OpenStatuses...) {
			return false
		}
		return t.IsOverdue(now) || escalation.ParseConfig(t.EscalationConfig).Len() > t.EscalationLevel
	})
	sortTasks(tasks, func(a, b *domain.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return tasks, nil
}

// FindWarningCandidates finds open tasks past their warning time, not yet
// due and not yet warned.
func (m *MemoryStore) FindWarningCandidates(_ context.Context, tenantID string, now time.Time) ([]*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := m.matching(func(t *domain.Task) bool {
		return t.TenantID == tenantID &&
			!t.IsDeleted() &&
			t.Status.In(domain.OpenStatuses...) &&
			t.WarnedAt == nil &&
			t.WarnAt != nil && !now.Before(*t.WarnAt) &&
			t.DueAt != nil && t.DueAt.After(now)
	})
	sortTasks(tasks, func(a, b *domain.Task) int { return a.WarnAt.Compare(*b.WarnAt) })
	return tasks, nil
}

func listMatches(t *domain.Task, f TaskListFilters) bool {
	switch {
	case t.TenantID != f.TenantID:
		return false
	case t.IsDeleted() && !f.IncludeDeleted:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status):
		return false
	case f.AssignedUserID != nil && !t.IsAssignedTo(*f.AssignedUserID):
		return false
	case f.AssignedGroupID != nil && (t.AssignedGroupID == nil || *t.AssignedGroupID != *f.AssignedGroupID):
		return false
	case f.ClaimedBy != nil && !t.IsClaimedBy(*f.ClaimedBy):
		return false
	case len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority):
		return false
	case f.Overdue && !(t.IsOverdue(f.Now) && t.Status.In(domain.OpenStatuses...)):
		return false
	}
	return true
}

// List retrieves tasks with filters and pagination, plus the unpaginated total.
func (m *MemoryStore) List(_ context.Context, filters TaskListFilters) ([]*domain.Task, int, error) {
	sort := filters.Sort
	if len(sort) == 0 {
		sort = []string{"priority", "created_at"}
	}
	for _, token := range sort {
		if !IsValidSort(token) {
			return nil, 0, fmt.Errorf("%w: unsupported sort field %q", domain.ErrValidation, token)
		}
	}

	m.mu.RLock()
	tasks := m.matching(func(t *domain.Task) bool { return listMatches(t, filters) })
	m.mu.RUnlock()

	sortTasks(tasks, func(a, b *domain.Task) int {
		for _, token := range sort {
			field := strings.TrimPrefix(token, "-")
			c := compareField(a, b, field)
			if strings.HasPrefix(token, "-") {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	total := len(tasks)
	start := min(filters.Offset, total)
	end := total
	if filters.Limit > 0 {
		end = min(start+filters.Limit, total)
	}
	return tasks[start:end], total, nil
}

var priorityOrder = map[domain.TaskPriority]int{
	domain.TaskPriorityUrgent: 1,
	domain.TaskPriorityHigh:   2,
	domain.TaskPriorityMedium: 3,
	domain.TaskPriorityLow:    4,
}

func compareField(a, b *domain.Task, field string) int {
	switch field {
	case "priority":
		return cmp.Compare(priorityOrder[a.Priority], priorityOrder[b.Priority])
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "due_at":
		return compareOptionalTime(a.DueAt, b.DueAt)
	}
	return 0
}

// compareOptionalTime orders nil last, like PostgreSQL's ascending NULLS LAST.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func sortTasks(tasks []*domain.Task, cmpFn func(a, b *domain.Task) int) {
	slices.SortFunc(tasks, func(a, b *domain.Task) int {
		if c := cmpFn(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// GetTenantStats computes task statistics for one tenant.
func (m *MemoryStore) GetTenantStats(_ context.Context, tenantID string, now time.Time) (*TenantStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &TenantStats{TasksByStatus: make(map[domain.TaskStatus]int)}
	for _, t := range m.tasks {
		if t.TenantID != tenantID || t.IsDeleted() {
			continue
		}
		stats.Total++
		stats.TasksByStatus[t.Status]++
		if t.Status.In(domain.OpenStatuses...) && t.IsOverdue(now) {
			stats.OverdueCount++
		}
	}
	stats.EscalatedCount = stats.TasksByStatus[domain.TaskStatusEscalated]
	return stats, nil
}

// ActiveMembers lists the active members of a group ordered by user id.
func (m *MemoryStore) ActiveMembers(_ context.Context, tenantID, groupID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []string
	for _, userID := range m.groups[directoryKey(tenantID, groupID)] {
		if user, ok := m.users[directoryKey(tenantID, userID)]; ok && !user.IsActive {
			continue
		}
		members = append(members, userID)
	}
	slices.Sort(members)
	return members, nil
}

// GetUser retrieves a directory user.
func (m *MemoryStore) GetUser(_ context.Context, tenantID, userID string) (*domain.DirectoryUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[directoryKey(tenantID, userID)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

// UpsertUser creates or replaces a directory user.
func (m *MemoryStore) UpsertUser(_ context.Context, user domain.DirectoryUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[directoryKey(user.TenantID, user.UserID)] = user
	return nil
}

// AddGroupMember adds a user to a group. Adding an existing member is a no-op.
func (m *MemoryStore) AddGroupMember(_ context.Context, tenantID, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := directoryKey(tenantID, groupID)
	if !slices.Contains(m.groups[key], userID) {
		m.groups[key] = append(m.groups[key], userID)
	}
	return nil
}
