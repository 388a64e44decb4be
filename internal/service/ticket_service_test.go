package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var (
	customer  = auth.Principal{UserID: "customer-1", Role: domain.RoleCustomer}
	customer2 = auth.Principal{UserID: "customer-2", Role: domain.RoleCustomer}
	tech      = auth.Principal{UserID: "tech-1", Role: domain.RoleTech}
	tech2     = auth.Principal{UserID: "tech-2", Role: domain.RoleTech}
	admin     = auth.Principal{UserID: "admin-1", Role: domain.RoleAdmin}
)

func newTicketFixture(t *testing.T) (*TicketService, *repository.MemoryTicketRepository) {
	t.Helper()
	lines := repository.NewMemoryServiceLineRepository()
	tickets := repository.NewMemoryTicketRepository(lines)
	svc := NewTicketService(TicketDependencies{
		TicketRepo: tickets,
		Dispatcher: events.NewInMemoryDispatcher(),
	})
	return svc, tickets
}

func createTicket(t *testing.T, svc *TicketService, owner auth.Principal) *domain.Ticket {
	t.Helper()
	ticket, err := svc.Create(context.Background(), owner, TicketCreateInput{
		Title:       "printer jammed",
		Description: "tray two keeps jamming",
		Category:    domain.CategoryHardware,
	})
	require.NoError(t, err)
	return ticket
}

func TestTicketService_Create(t *testing.T) {
	svc, _ := newTicketFixture(t)

	ticket := createTicket(t, svc, customer)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, customer.UserID, ticket.OwnerID)
	assert.Nil(t, ticket.TechnicianID)
	assert.Zero(t, ticket.Estimate)
	assert.NotEmpty(t, ticket.ID)
}

func TestTicketService_Create_Rejections(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tech, TicketCreateInput{Title: "x", Description: "y", Category: domain.CategoryData})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "techs do not open tickets")

	_, err = svc.Create(ctx, auth.Principal{}, TicketCreateInput{Title: "x", Description: "y", Category: domain.CategoryData})
	assert.True(t, apperrors.IsCode(err, "UNAUTHENTICATED"))

	_, err = svc.Create(ctx, customer, TicketCreateInput{Title: "x", Description: "y", Category: "plumbing"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	negative := -1.0
	_, err = svc.Create(ctx, customer, TicketCreateInput{Title: "x", Description: "y", Category: domain.CategoryData, Estimate: &negative})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestTicketService_AssignSelf_ConcurrentExactlyOneWins(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	const claimers = 8
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := auth.Principal{UserID: fmt.Sprintf("tech-%d", i), Role: domain.RoleTech}
			_, errs[i] = svc.AssignSelf(ctx, p, ticket.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.IsCode(err, "CONFLICT"), "loser got %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	got, err := svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TechnicianID)
}

func TestTicketService_AssignSelf_Idempotent(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)

	got, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err, "re-claiming an already held ticket is a no-op")
	assert.True(t, got.AssignedTo(tech.UserID))

	_, err = svc.AssignSelf(ctx, tech2, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestTicketService_AssignSelf_Rejections(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.AssignSelf(ctx, customer, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = svc.AssignSelf(ctx, tech, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	_, err = svc.AssignSelf(ctx, customer, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"), "existence is judged before role")

	_, err = svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionStart)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionClose)
	require.NoError(t, err)

	_, err = svc.AssignSelf(ctx, tech2, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"), "closed tickets cannot be claimed")
}

func TestTicketService_Transition_Lifecycle(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)

	got, err := svc.Transition(ctx, tech, ticket.ID, domain.ActionStart)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, got.Status)
	require.NotNil(t, got.TechnicianID, "in_progress always carries a technician")

	got, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionClose)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)

	got, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionReopen)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, got.Status, "reopen with assignee resumes work")
	require.NotNil(t, got.TechnicianID)
}

func TestTicketService_Transition_CloseFromOpenFails(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionClose)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))

	got, err := svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, got.Status, "failed transition leaves state untouched")
}

func TestTicketService_Transition_Rejections(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.Transition(ctx, tech, "missing", domain.ActionStart)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	_, err = svc.Transition(ctx, customer, ticket.ID, domain.ActionStart)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "customers never drive the lifecycle")

	_, err = svc.Transition(ctx, admin, ticket.ID, domain.ActionStart)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"), "start on an unassigned ticket has no technician to carry")

	_, err = svc.Transition(ctx, tech, ticket.ID, domain.LifecycleAction("escalate"))
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech2, ticket.ID, domain.ActionStart)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "only the assignee works the ticket")

	_, err = svc.Transition(ctx, admin, ticket.ID, domain.ActionStart)
	assert.NoError(t, err, "admins override the assignee check")
}

func TestTicketService_List_Pagination(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		createTicket(t, svc, customer)
	}

	tickets, page, err := svc.List(ctx, admin, 3, 10)
	require.NoError(t, err)
	assert.Len(t, tickets, 5)
	assert.Equal(t, Pagination{Page: 3, PerPage: 10, TotalRecords: 25, TotalPages: 3}, page)

	tickets, page, err = svc.List(ctx, admin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tickets, 10, "defaults are page 1, ten per page")
	assert.Equal(t, 1, page.Page)

	_, page, err = svc.List(ctx, admin, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, maxPerPage, page.PerPage, "perPage is clamped")
}

func TestTicketService_List_EmptySet(t *testing.T) {
	svc, _ := newTicketFixture(t)

	tickets, page, err := svc.List(context.Background(), admin, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 0, page.TotalRecords)
	assert.Equal(t, 1, page.TotalPages, "empty result still reports one page")
}

func TestTicketService_List_OrderedNewestFirst(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		createTicket(t, svc, customer)
	}

	tickets, _, err := svc.List(ctx, admin, 1, 10)
	require.NoError(t, err)
	for i := 1; i < len(tickets); i++ {
		assert.False(t, tickets[i].CreatedAt.After(tickets[i-1].CreatedAt),
			"listing must be newest first")
	}
}

func TestTicketService_List_CustomerScoping(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	createTicket(t, svc, customer)
	createTicket(t, svc, customer)
	createTicket(t, svc, customer2)

	tickets, page, err := svc.List(ctx, customer, 1, 10)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, 2, page.TotalRecords)
	for _, ticket := range tickets {
		assert.Equal(t, customer.UserID, ticket.OwnerID)
	}

	tickets, _, err = svc.List(ctx, tech, 1, 10)
	require.NoError(t, err)
	assert.Len(t, tickets, 3, "technicians see the whole pool")
}

func TestTicketService_Get_CustomerOwnership(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.Get(ctx, customer, ticket.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, customer2, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = svc.Get(ctx, tech, ticket.ID)
	assert.NoError(t, err, "unassigned tickets must be readable before claiming")
}

func TestTicketService_AdminUpdate(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	title := "replace fuser"
	status := domain.TicketStatusInProgress
	techID := tech.UserID
	got, err := svc.AdminUpdate(ctx, admin, ticket.ID, AdminTicketUpdate{
		Title:        &title,
		Status:       &status,
		TechnicianID: &techID,
	})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, domain.TicketStatusInProgress, got.Status)
	require.NotNil(t, got.TechnicianID)
	assert.Equal(t, techID, *got.TechnicianID)
}

func TestTicketService_AdminUpdate_Rejections(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	_, err := svc.AdminUpdate(ctx, tech, ticket.ID, AdminTicketUpdate{})
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = svc.AdminUpdate(ctx, admin, "missing", AdminTicketUpdate{})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	status := domain.TicketStatusInProgress
	_, err = svc.AdminUpdate(ctx, admin, ticket.ID, AdminTicketUpdate{Status: &status})
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"),
		"in_progress without a technician is never stored")

	bad := domain.TicketStatus("paused")
	_, err = svc.AdminUpdate(ctx, admin, ticket.ID, AdminTicketUpdate{Status: &bad})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestTicketService_Delete(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()
	ticket := createTicket(t, svc, customer)

	err := svc.Delete(ctx, customer, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"), "owners do not get to destroy records")

	_, err = svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err, "forbidden delete must not mutate")

	err = svc.Delete(ctx, admin, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	require.NoError(t, svc.Delete(ctx, admin, ticket.ID))
	_, err = svc.Get(ctx, admin, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

// hookedTicketRepo lets a test interleave a competing write between the
// service's read of a ticket and its guarded write.
type hookedTicketRepo struct {
	repository.TicketRepository
	afterGet func()
}

func (r *hookedTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := r.TicketRepository.GetByID(ctx, id)
	if r.afterGet != nil {
		hook := r.afterGet
		r.afterGet = nil
		hook()
	}
	return ticket, err
}

func newHookedFixture(t *testing.T) (*TicketService, *repository.MemoryTicketRepository, *hookedTicketRepo) {
	t.Helper()
	lines := repository.NewMemoryServiceLineRepository()
	mem := repository.NewMemoryTicketRepository(lines)
	hooked := &hookedTicketRepo{TicketRepository: mem}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: hooked,
		Dispatcher: events.NewInMemoryDispatcher(),
	})
	return svc, mem, hooked
}

func TestTicketService_Transition_PreservesConcurrentEstimateWrite(t *testing.T) {
	svc, mem, hooked := newHookedFixture(t)
	ctx := context.Background()

	ticket := createTicket(t, svc, customer)
	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionStart)
	require.NoError(t, err)

	// An estimate recomputation lands between close's read and its write.
	hooked.afterGet = func() {
		require.NoError(t, mem.SetEstimate(ctx, ticket.ID, 150))
	}
	got, err := svc.Transition(ctx, tech, ticket.ID, domain.ActionClose)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)
	assert.Equal(t, 150.0, got.Estimate, "the close must not revert the estimate")

	final, err := svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, final.Estimate)
}

func TestTicketService_Transition_LostStatusRaceConflicts(t *testing.T) {
	svc, mem, hooked := newHookedFixture(t)
	ctx := context.Background()

	ticket := createTicket(t, svc, customer)
	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)

	// The ticket closes between start's read and its conditional write.
	hooked.afterGet = func() {
		_, err := mem.TransitionStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusClosed, false)
		require.NoError(t, err)
	}
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionStart)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"), "a lost status race must not land, got %v", err)

	got, err := svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status, "the competing write wins")
}

func TestTicketService_AdminUpdate_LostStatusRaceConflicts(t *testing.T) {
	svc, mem, hooked := newHookedFixture(t)
	ctx := context.Background()

	ticket := createTicket(t, svc, customer)
	hooked.afterGet = func() {
		_, err := mem.TransitionStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusClosed, false)
		require.NoError(t, err)
	}

	title := "rewritten"
	_, err := svc.AdminUpdate(ctx, admin, ticket.ID, AdminTicketUpdate{Title: &title})
	assert.True(t, apperrors.IsCode(err, "CONFLICT"), "stale overwrite must not land, got %v", err)

	got, err := svc.Get(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)
	assert.NotEqual(t, title, got.Title)
}

func TestTicketService_AssignSelf_ClosedMidClaim(t *testing.T) {
	svc, mem, hooked := newHookedFixture(t)
	ctx := context.Background()

	ticket := createTicket(t, svc, customer)
	hooked.afterGet = func() {
		_, err := mem.TransitionStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusClosed, false)
		require.NoError(t, err)
	}

	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"),
		"a ticket that closed underneath the claim is not a conflict, got %v", err)
}

// Walks the canonical life of a ticket across all three roles.
func TestTicketService_EndToEnd(t *testing.T) {
	svc, _ := newTicketFixture(t)
	ctx := context.Background()

	ticket := createTicket(t, svc, customer)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)

	_, err := svc.AssignSelf(ctx, tech, ticket.ID)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionStart)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tech, ticket.ID, domain.ActionClose)
	require.NoError(t, err)

	got, err := svc.Get(ctx, customer, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, got.Status)

	reopened, err := svc.Transition(ctx, admin, ticket.ID, domain.ActionReopen)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)

	require.NoError(t, svc.Delete(ctx, admin, ticket.ID))
	_, _, err = svc.List(ctx, customer, 1, 10)
	require.NoError(t, err)
}
