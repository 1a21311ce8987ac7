// Package assignment turns a {user|group} target into a concrete assignment.
package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mtlprog/humantask/internal/domain"
)

// Strategy selects how a group-only target is narrowed to a member.
type Strategy string

const (
	// StrategyNone leaves group tasks unclaimed until a member claims them.
	StrategyNone Strategy = "none"
	// StrategyRoundRobin picks the next active member of the group.
	StrategyRoundRobin Strategy = "round_robin"
)

// ParseStrategy validates a strategy name. An empty name means StrategyNone.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyNone:
		return StrategyNone, nil
	case StrategyRoundRobin:
		return StrategyRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown assignment strategy %q", s)
	}
}

// MemberLookup lists the active members of a group.
type MemberLookup interface {
	ActiveMembers(ctx context.Context, tenantID, groupID string) ([]string, error)
}

// Resolver resolves assignment targets. It is safe for concurrent use.
type Resolver struct {
	members  MemberLookup
	strategy Strategy

	mu      sync.Mutex
	cursors map[string]int
}

// NewResolver creates a Resolver. members may be nil with StrategyNone.
func NewResolver(members MemberLookup, strategy Strategy) *Resolver {
	if members == nil {
		strategy = StrategyNone
	}
	return &Resolver{
		members:  members,
		strategy: strategy,
		cursors:  make(map[string]int),
	}
}

// Resolve returns the assignment for target. An empty target resolves to an
// empty assignment. A user target assigns the user directly; a group target
// keeps the group as nominal assignee and, depending on the strategy, also
// picks a member. Member lookup failures degrade to a group-only assignment.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, target domain.Target) (domain.Assignment, error) {
	if err := Validate(target); err != nil {
		return domain.Assignment{}, err
	}
	if target.IsEmpty() {
		return domain.Assignment{}, nil
	}

	var a domain.Assignment
	if target.UserID != "" {
		a.UserID = &target.UserID
	}
	if target.GroupID != "" {
		a.GroupID = &target.GroupID
	}
	if a.UserID != nil || r.strategy != StrategyRoundRobin {
		return a, nil
	}

	member, err := r.nextMember(ctx, tenantID, target.GroupID)
	if err != nil {
		slog.Warn("group member lookup failed, leaving task unclaimed",
			"tenant_id", tenantID,
			"group_id", target.GroupID,
			"error", err,
		)
		return a, nil
	}
	if member != "" {
		a.UserID = &member
	}
	return a, nil
}

func (r *Resolver) nextMember(ctx context.Context, tenantID, groupID string) (string, error) {
	members, err := r.members.ActiveMembers(ctx, tenantID, groupID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", nil
	}

	key := tenantID + "/" + groupID
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.cursors[key] % len(members)
	r.cursors[key] = i + 1
	return members[i], nil
}

// Validate rejects targets whose ids are present but blank.
func Validate(target domain.Target) error {
	if target.UserID != "" && strings.TrimSpace(target.UserID) == "" {
		return fmt.Errorf("%w: blank userId", domain.ErrInvalidTarget)
	}
	if target.GroupID != "" && strings.TrimSpace(target.GroupID) == "" {
		return fmt.Errorf("%w: blank groupId", domain.ErrInvalidTarget)
	}
	return nil
}
