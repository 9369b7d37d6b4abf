package billing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mhartwig/shelfmark/app/models"
)

// fakeStore is an in-memory Store with the same compare-and-set semantics as
// the GORM implementation.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[uint]*Entitlement
	events map[string]*models.BillingWebhookEvent
	nextID uint

	saveErr      error
	saveErrTimes int
	saveCount    int
}

func newFakeStore(rows ...*Entitlement) *fakeStore {
	s := &fakeStore{
		rows:   make(map[uint]*Entitlement),
		events: make(map[string]*models.BillingWebhookEvent),
	}
	for _, e := range rows {
		s.rows[e.UserID] = e.Clone()
	}
	return s
}

func (s *fakeStore) GetEntitlement(_ context.Context, userID uint) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return e.Clone(), nil
}

func (s *fakeStore) FindEntitlementByCustomerRef(_ context.Context, ref string) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == "" {
		return nil, ErrUserNotFound
	}
	for _, e := range s.rows {
		if e.CustomerRef == ref {
			return e.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) FindEntitlementByEmail(_ context.Context, email string) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email == "" {
		return nil, ErrUserNotFound
	}
	for _, e := range s.rows {
		if strings.EqualFold(e.Email, email) {
			return e.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) FindEntitlementBySubscriptionRef(_ context.Context, ref string) (*Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == "" {
		return nil, ErrUserNotFound
	}
	for _, e := range s.rows {
		if e.SubscriptionRef == ref {
			return e.Clone(), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeStore) SaveEntitlement(_ context.Context, e *Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	if s.saveErr != nil && s.saveErrTimes != 0 {
		s.saveErrTimes--
		return s.saveErr
	}
	current, ok := s.rows[e.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if current.Version != e.Version {
		return ErrConcurrentModification
	}
	saved := e.Clone()
	saved.Version++
	s.rows[e.UserID] = saved
	e.Version++
	return nil
}

func (s *fakeStore) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := s.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	s.nextID++
	event.ID = s.nextID
	cp := *event
	s.events[key] = &cp
	out := cp
	return true, &out, nil
}

func (s *fakeStore) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return nil
}

// snapshot returns the stored row for equality assertions.
func (s *fakeStore) snapshot(userID uint) *Entitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[userID].Clone()
}

// fakeGateway scripts provider responses and records the calls made.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	checkoutURL      string
	checkoutCustomer string
	checkoutErr      error
	status           string
	statusErr        error
	swap             *PriceSwap
	swapErr          error
	payErr           error
	revertErr        error
	cancelErr        error
	invoices         []Invoice
	invoicesErr      error
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) calledWith() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) EnsureCustomer(_ context.Context, e *Entitlement) (string, error) {
	g.record("ensure_customer")
	if e.CustomerRef != "" {
		return e.CustomerRef, nil
	}
	return g.checkoutCustomer, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	g.record("create_checkout")
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	customer := p.Entitlement.CustomerRef
	if customer == "" {
		customer = g.checkoutCustomer
	}
	return &CheckoutSession{ID: "cs_test", URL: g.checkoutURL, CustomerRef: customer}, nil
}

func (g *fakeGateway) SubscriptionStatus(_ context.Context, _ string) (string, error) {
	g.record("subscription_status")
	return g.status, g.statusErr
}

func (g *fakeGateway) SwapPrice(_ context.Context, subscriptionRef, newPriceRef string) (*PriceSwap, error) {
	g.record("swap_price")
	if g.swapErr != nil {
		return nil, g.swapErr
	}
	if g.swap != nil {
		return g.swap, nil
	}
	return &PriceSwap{
		SubscriptionRef:  subscriptionRef,
		PreviousPriceRef: "price_old",
		NewPriceRef:      newPriceRef,
		InvoiceRef:       "in_test",
	}, nil
}

func (g *fakeGateway) PayInvoice(_ context.Context, _ string) error {
	g.record("pay_invoice")
	return g.payErr
}

func (g *fakeGateway) RevertPrice(_ context.Context, _, _ string) error {
	g.record("revert_price")
	return g.revertErr
}

func (g *fakeGateway) CancelAtPeriodEnd(_ context.Context, _ string) error {
	g.record("cancel_at_period_end")
	return g.cancelErr
}

func (g *fakeGateway) ListInvoices(_ context.Context, _ string, _ int) ([]Invoice, error) {
	g.record("list_invoices")
	return g.invoices, g.invoicesErr
}

func testCatalog() *Catalog {
	return NewCatalog(
		PlanInfo{Plan: PlanExplorer, PriceRef: "price_explorer", DurationMonths: 3},
		PlanInfo{Plan: PlanTraveler, PriceRef: "price_traveler", DurationMonths: 6},
		PlanInfo{Plan: PlanDevourer, PriceRef: "price_devourer", DurationMonths: 12},
	)
}
