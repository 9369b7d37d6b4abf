package billing

import (
	"errors"
	"time"
)

// Entitlement is the per-user billing record: which paid tier the user holds,
// until when, and the provider refs correlating the local account to Stripe.
// It is persisted as columns on the users row; Version is the optimistic
// concurrency token that serializes the synchronous checkout path against the
// webhook reconciler.
type Entitlement struct {
	UserID            uint
	Email             string
	Plan              Plan
	ExpiresAt         *time.Time
	CustomerRef       string
	SubscriptionRef   string
	CancelAtPeriodEnd bool
	LifetimeAccess    bool
	Version           uint
}

// State is the explicit entitlement state derived from the persisted fields.
type State int

const (
	StateFree State = iota
	StateActive
	StatePendingCancellation
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePendingCancellation:
		return "pending_cancellation"
	default:
		return "free"
	}
}

// IsActive reports whether the entitlement currently grants paid access:
// an administrative lifetime override, or an expiry strictly in the future.
// Pure function of the receiver and the supplied clock.
func (e *Entitlement) IsActive(now time.Time) bool {
	if e == nil {
		return false
	}
	if e.LifetimeAccess {
		return true
	}
	return e.ExpiresAt != nil && e.ExpiresAt.After(now)
}

// State returns the tagged entitlement state at the given instant.
func (e *Entitlement) State(now time.Time) State {
	if !e.IsActive(now) || e.Plan == "" {
		return StateFree
	}
	if e.CancelAtPeriodEnd {
		return StatePendingCancellation
	}
	return StateActive
}

// Clone returns a deep copy, used by write paths to mutate without aliasing.
func (e *Entitlement) Clone() *Entitlement {
	if e == nil {
		return nil
	}
	out := *e
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

type transitionKind int

const (
	transitionActivate transitionKind = iota
	transitionScheduleCancellation
	transitionExpire
	transitionAttachCustomer
)

// transition is the single description of a legal entitlement change. Both
// the synchronous checkout path and the webhook reconciler go through apply,
// so the legal plan/expiry/refs combinations are enumerated in one place.
type transition struct {
	kind            transitionKind
	plan            Plan
	expiresAt       time.Time
	customerRef     string
	subscriptionRef string
}

// apply mutates the entitlement according to the transition and enforces the
// structural invariant: a subscription ref implies plan and expiry are set.
func (e *Entitlement) apply(tr transition) error {
	switch tr.kind {
	case transitionActivate:
		if tr.plan == "" || tr.expiresAt.IsZero() || tr.subscriptionRef == "" {
			return errors.New("billing: activate transition requires plan, expiry and subscription ref")
		}
		e.Plan = tr.plan
		t := tr.expiresAt
		e.ExpiresAt = &t
		if tr.customerRef != "" {
			e.CustomerRef = tr.customerRef
		}
		e.SubscriptionRef = tr.subscriptionRef
		e.CancelAtPeriodEnd = false
		return nil

	case transitionScheduleCancellation:
		if e.SubscriptionRef == "" {
			return ErrNoActiveSubscription
		}
		e.CancelAtPeriodEnd = true
		return nil

	case transitionExpire:
		// Refund or final cancellation: drop back to free tier. The customer
		// ref is retained for future billing operations; expiry is left in
		// the past rather than cleared so history shows the account was paid.
		if tr.expiresAt.IsZero() {
			return errors.New("billing: expire transition requires a timestamp")
		}
		e.Plan = ""
		t := tr.expiresAt
		e.ExpiresAt = &t
		e.SubscriptionRef = ""
		e.CancelAtPeriodEnd = false
		return nil

	case transitionAttachCustomer:
		if tr.customerRef == "" {
			return errors.New("billing: attach transition requires a customer ref")
		}
		e.CustomerRef = tr.customerRef
		return nil

	default:
		return errors.New("billing: unknown transition")
	}
}

// Activate moves the entitlement to the given paid plan with a fresh expiry.
// Upgrades and downgrades reset the duration clock; they never add to
// remaining time.
func (e *Entitlement) Activate(plan Plan, expiresAt time.Time, customerRef, subscriptionRef string) error {
	return e.apply(transition{
		kind:            transitionActivate,
		plan:            plan,
		expiresAt:       expiresAt,
		customerRef:     customerRef,
		subscriptionRef: subscriptionRef,
	})
}

// ScheduleCancellation marks the subscription for end-of-period termination.
// Access is unchanged until the provider's Cancelled event finalizes it.
func (e *Entitlement) ScheduleCancellation() error {
	return e.apply(transition{kind: transitionScheduleCancellation})
}

// Expire reverts to free tier as of the given instant (refund or final
// cancellation).
func (e *Entitlement) Expire(at time.Time) error {
	return e.apply(transition{kind: transitionExpire, expiresAt: at})
}

// AttachCustomer records the provider customer ref created for this user.
func (e *Entitlement) AttachCustomer(customerRef string) error {
	return e.apply(transition{kind: transitionAttachCustomer, customerRef: customerRef})
}

// Matches reports whether the entitlement already reflects the given
// (plan, customer, subscription) tuple. The reconciler uses this to make
// PaymentConfirmed redelivery a no-op instead of blindly reapplying.
func (e *Entitlement) Matches(plan Plan, customerRef, subscriptionRef string) bool {
	return e.Plan == plan &&
		e.SubscriptionRef == subscriptionRef &&
		(customerRef == "" || e.CustomerRef == customerRef) &&
		e.ExpiresAt != nil
}
