package escalation_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/escalation"
)

var created = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func threeStepChain(t *testing.T) escalation.Chain {
	t.Helper()
	chain, err := escalation.NewChain().
		After("15m").Notify("still open").
		After("30m").EscalateTo(domain.Target{GroupID: "G1"}).
		After("1h").EscalateTo(domain.Target{GroupID: "G2"}).
		Build()
	require.NoError(t, err)
	return chain
}

func TestApplicableStep_PicksLatestElapsed(t *testing.T) {
	chain := threeStepChain(t)

	sel, ok := escalation.ApplicableStep(chain, created, 0, created.Add(45*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, sel.Index)
	assert.Equal(t, "G1", sel.Step.Target.GroupID)
	assert.False(t, sel.IsFinal)
	assert.Equal(t, []int{0}, sel.Skipped)
}

func TestApplicableStep_Boundaries(t *testing.T) {
	chain := threeStepChain(t)

	_, ok := escalation.ApplicableStep(chain, created, 0, created.Add(14*time.Minute))
	assert.False(t, ok, "nothing elapsed yet")

	sel, ok := escalation.ApplicableStep(chain, created, 0, created.Add(15*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 0, sel.Index)
	assert.Empty(t, sel.Skipped)

	sel, ok = escalation.ApplicableStep(chain, created, 0, created.Add(2*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, sel.Index)
	assert.True(t, sel.IsFinal)
	assert.Equal(t, []int{0, 1}, sel.Skipped)
}

func TestApplicableStep_RespectsExecutedCount(t *testing.T) {
	chain := threeStepChain(t)

	_, ok := escalation.ApplicableStep(chain, created, 2, created.Add(45*time.Minute))
	assert.False(t, ok, "steps before the executed count never fire again")

	_, ok = escalation.ApplicableStep(chain, created, 3, created.Add(5*time.Hour))
	assert.False(t, ok, "exhausted chain")

	_, ok = escalation.ApplicableStep(nil, created, 0, created.Add(5*time.Hour))
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	chain, err := escalation.Validate(json.RawMessage(`[
		{"after": "15m", "action": "notify"},
		{"after": "1h", "toGroupId": "leads", "message": "overdue"},
		{"after": "1d", "action": "reassign", "toUserId": "u-9"}
	]`))
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, escalation.ActionEscalate, chain[1].Action)
	assert.Equal(t, int64(3_600_000), chain[1].AfterMillis)
	assert.Equal(t, "u-9", chain[2].Target.UserID)

	for _, raw := range []string{
		`{"after": "1h"}`,
		`[{"after": "soon", "toUserId": "u"}]`,
		`[{"after": "1h"}]`,
		`[{"after": "1h", "action": "page", "toUserId": "u"}]`,
		`["1h"]`,
	} {
		_, err := escalation.Validate(json.RawMessage(raw))
		assert.ErrorIs(t, err, domain.ErrInvalidEscalation, raw)
		assert.Nil(t, escalation.ParseConfig(json.RawMessage(raw)), "malformed config means no chain")
	}

	chain, err = escalation.Validate(nil)
	require.NoError(t, err)
	assert.Nil(t, chain)
}

func TestChainMarshalRoundTrip(t *testing.T) {
	chain := threeStepChain(t)

	raw, err := chain.Marshal()
	require.NoError(t, err)

	again := escalation.ParseConfig(raw)
	assert.Equal(t, chain, again)
}

func TestBuilderErrors(t *testing.T) {
	_, err := escalation.NewChain().EscalateTo(domain.Target{UserID: "u"}).Build()
	assert.ErrorIs(t, err, domain.ErrInvalidEscalation)

	_, err = escalation.NewChain().After("1h").EscalateTo(domain.Target{}).Build()
	assert.ErrorIs(t, err, domain.ErrInvalidEscalation)

	_, err = escalation.NewChain().After("1h").After("2h").Build()
	assert.ErrorIs(t, err, domain.ErrInvalidEscalation)

	_, err = escalation.NewChain().After("later").Notify("x").Build()
	assert.ErrorIs(t, err, domain.ErrInvalidEscalation)

	_, err = escalation.NewChain().Build()
	assert.ErrorIs(t, err, domain.ErrInvalidEscalation)
}

func TestResolveManualTarget(t *testing.T) {
	chain := threeStepChain(t)
	withTarget, err := escalation.NewChain().After("1h").EscalateTo(domain.Target{GroupID: "G1"}).Build()
	require.NoError(t, err)
	current := domain.Assignment{UserID: strPtr("u-1"), GroupID: strPtr("ops")}

	target, src := escalation.ResolveManualTarget(&domain.Target{UserID: "boss"}, withTarget, current)
	assert.Equal(t, domain.Target{UserID: "boss"}, target)
	assert.Equal(t, escalation.SourceExplicit, src)

	target, src = escalation.ResolveManualTarget(&domain.Target{}, withTarget, current)
	assert.Equal(t, domain.Target{GroupID: "G1"}, target)
	assert.Equal(t, escalation.SourceChain, src)

	// The first step is a notify without a target, so the chain has nothing to offer.
	target, src = escalation.ResolveManualTarget(nil, chain, current)
	assert.Equal(t, domain.Target{UserID: "u-1", GroupID: "ops"}, target)
	assert.Equal(t, escalation.SourceCurrent, src)
}

func TestDecide(t *testing.T) {
	chainRaw, err := threeStepChain(t).Marshal()
	require.NoError(t, err)
	due := created.Add(20 * time.Minute)

	task := &domain.Task{CreatedAt: created, DueAt: &due, EscalationConfig: chainRaw}
	d := escalation.Decide(task, created.Add(45*time.Minute))
	assert.Equal(t, escalation.DecisionStep, d.Kind)
	assert.Equal(t, 1, d.Selection.Index)

	task.EscalationLevel = 2
	d = escalation.Decide(task, created.Add(45*time.Minute))
	assert.Equal(t, escalation.DecisionNone, d.Kind, "chain not exhausted, next step not due")

	task.EscalationLevel = 3
	d = escalation.Decide(task, created.Add(45*time.Minute))
	assert.Equal(t, escalation.DecisionDefault, d.Kind)

	plain := &domain.Task{CreatedAt: created, DueAt: &due, BreachAction: domain.BreachActionExpire}
	assert.Equal(t, escalation.DecisionExpire, escalation.Decide(plain, due).Kind)
	assert.Equal(t, escalation.DecisionNone, escalation.Decide(plain, due.Add(-time.Second)).Kind)

	noSLA := &domain.Task{CreatedAt: created}
	assert.Equal(t, escalation.DecisionNone, escalation.Decide(noSLA, created.Add(24*time.Hour)).Kind)
}
