package billing

import "errors"

// Error taxonomy for the subscription lifecycle. Callers match with
// errors.Is; controllers translate these into HTTP responses.
var (
	// ErrInvalidPlan: the requested plan is not in the catalog. Caller error,
	// not retryable.
	ErrInvalidPlan = errors.New("billing: invalid plan")

	// ErrPaymentFailed: the provider declined payment collection. Reported to
	// the user, never retried automatically.
	ErrPaymentFailed = errors.New("billing: payment failed")

	// ErrProviderUnavailable: transient provider communication failure. Safe
	// to retry; no local state was mutated.
	ErrProviderUnavailable = errors.New("billing: provider unavailable")

	// ErrNoActiveSubscription: cancellation requested without a subscription.
	ErrNoActiveSubscription = errors.New("billing: no active subscription")

	// ErrUserNotFound: no local account matches the event's correlation refs.
	ErrUserNotFound = errors.New("billing: user not found")

	// ErrEventUnverified: webhook signature check failed. The request is
	// rejected at the boundary and never dispatched.
	ErrEventUnverified = errors.New("billing: event signature unverified")

	// ErrConcurrentModification: the entitlement row changed under us. The
	// write path retries once internally before surfacing this.
	ErrConcurrentModification = errors.New("billing: concurrent entitlement modification")
)
