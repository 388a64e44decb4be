package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFor_KnownActions(t *testing.T) {
	for _, action := range []LifecycleAction{ActionStart, ActionClose, ActionReopen} {
		_, ok := RuleFor(action)
		assert.True(t, ok, "rule missing for %s", action)
	}

	_, ok := RuleFor(LifecycleAction("escalate"))
	assert.False(t, ok)
}

func TestTransitionRules_SourceStates(t *testing.T) {
	cases := map[LifecycleAction]TicketStatus{
		ActionStart:  TicketStatusOpen,
		ActionClose:  TicketStatusInProgress,
		ActionReopen: TicketStatusClosed,
	}
	for action, want := range cases {
		rule, ok := RuleFor(action)
		require.True(t, ok)
		assert.Equal(t, want, rule.From, "source state for %s", action)
	}
}

func TestTransitionRules_RoleEligibility(t *testing.T) {
	for action, rule := range TransitionRules {
		assert.False(t, rule.AllowsRole(RoleCustomer), "customer may not %s", action)
		assert.True(t, rule.AllowsRole(RoleTech), "tech may %s", action)
		assert.True(t, rule.AllowsRole(RoleAdmin), "admin may %s", action)
	}
}

func TestTransitionRules_Destinations(t *testing.T) {
	tech := "tech-1"

	start, _ := RuleFor(ActionStart)
	assert.Equal(t, TicketStatusInProgress, start.Next(&Ticket{TechnicianID: &tech}))
	assert.True(t, start.NeedsTechnician, "in_progress must carry a technician")

	closeRule, _ := RuleFor(ActionClose)
	assert.Equal(t, TicketStatusClosed, closeRule.Next(&Ticket{TechnicianID: &tech}))

	reopen, _ := RuleFor(ActionReopen)
	assert.Equal(t, TicketStatusInProgress, reopen.Next(&Ticket{TechnicianID: &tech}),
		"reopen with assignee resumes work")
	assert.Equal(t, TicketStatusOpen, reopen.Next(&Ticket{}),
		"reopen without assignee returns to the pool")
}

func TestTicket_AssignedTo(t *testing.T) {
	tech := "tech-1"
	assert.False(t, (&Ticket{}).AssignedTo(tech))
	assert.True(t, (&Ticket{TechnicianID: &tech}).AssignedTo(tech))
	assert.False(t, (&Ticket{TechnicianID: &tech}).AssignedTo("tech-2"))
}

func TestValidCategory(t *testing.T) {
	all := []TicketCategory{
		CategoryHardware, CategoryData, CategorySoftware, CategoryWeb,
		CategoryNetwork, CategoryVirus, CategoryPeripherals, CategorySystems,
	}
	for _, cat := range all {
		assert.True(t, ValidCategory(cat))
	}
	assert.False(t, ValidCategory(TicketCategory("plumbing")))
}
