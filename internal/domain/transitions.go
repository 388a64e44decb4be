package domain

// LifecycleAction names a requested status transition.
type LifecycleAction string

const (
	ActionStart  LifecycleAction = "start"
	ActionClose  LifecycleAction = "close"
	ActionReopen LifecycleAction = "reopen"
)

// TransitionRule is one row of the lifecycle legality matrix. The matrix is
// data so every (state, action, role, assignment) combination can be checked
// exhaustively instead of living in per-role branches.
type TransitionRule struct {
	// From is the only legal source state for the action.
	From TicketStatus
	// Roles may invoke the action at all; everyone else is denied.
	Roles []Role
	// NeedsAssignment requires a technician caller to be the current
	// assignee. Admins override this check.
	NeedsAssignment bool
	// NeedsTechnician requires the ticket to carry a technician no matter
	// who calls, so in_progress never exists unassigned.
	NeedsTechnician bool
	// Next computes the destination state from the ticket being moved.
	Next func(t *Ticket) TicketStatus
}

// AllowsRole reports whether the rule admits the given role.
func (r TransitionRule) AllowsRole(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// TransitionRules is the lifecycle legality matrix keyed by action.
var TransitionRules = map[LifecycleAction]TransitionRule{
	ActionStart: {
		From:            TicketStatusOpen,
		Roles:           []Role{RoleTech, RoleAdmin},
		NeedsAssignment: true,
		NeedsTechnician: true,
		Next: func(*Ticket) TicketStatus {
			return TicketStatusInProgress
		},
	},
	ActionClose: {
		From:            TicketStatusInProgress,
		Roles:           []Role{RoleTech, RoleAdmin},
		NeedsAssignment: true,
		Next: func(*Ticket) TicketStatus {
			return TicketStatusClosed
		},
	},
	ActionReopen: {
		From:            TicketStatusClosed,
		Roles:           []Role{RoleTech, RoleAdmin},
		NeedsAssignment: true,
		Next: func(t *Ticket) TicketStatus {
			if t.TechnicianID == nil {
				return TicketStatusOpen
			}
			return TicketStatusInProgress
		},
	},
}

// RuleFor looks up the rule for an action.
func RuleFor(action LifecycleAction) (TransitionRule, bool) {
	rule, ok := TransitionRules[action]
	return rule, ok
}
