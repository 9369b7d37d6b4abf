package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ProviderName tags webhook event rows and log lines.
const ProviderName = "stripe"

// EventKind is the closed set of provider events the reconciler acts on.
// Everything else is KindIgnored and acknowledged without processing.
type EventKind int

const (
	KindIgnored EventKind = iota
	KindPaymentConfirmed
	KindRefunded
	KindCancelled
)

func (k EventKind) String() string {
	switch k {
	case KindPaymentConfirmed:
		return "payment_confirmed"
	case KindRefunded:
		return "refunded"
	case KindCancelled:
		return "cancelled"
	default:
		return "ignored"
	}
}

// PaymentConfirmed is a completed subscription checkout. UserID and Plan come
// from the correlation metadata attached at session creation.
type PaymentConfirmed struct {
	UserID          uint
	Plan            Plan
	CustomerRef     string
	SubscriptionRef string
	Email           string
}

// Refunded is a charge refund. CustomerRef is the primary correlation key;
// Email is the weaker fallback.
type Refunded struct {
	CustomerRef string
	Email       string
}

// Cancelled is a subscription fully terminated at the provider.
type Cancelled struct {
	SubscriptionRef string
	CustomerRef     string
}

// ProviderEvent is one verified webhook delivery decoded into exactly one of
// the variant payloads according to Kind.
type ProviderEvent struct {
	ID       string
	Type     string
	Kind     EventKind
	Payment  *PaymentConfirmed
	Refund   *Refunded
	Cancel   *Cancelled
	RawBody  []byte
}

// VerifyEvent checks the webhook signature and returns the decoded Stripe
// envelope. Invalid signatures map to ErrEventUnverified.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrEventUnverified, err)
	}
	return event, nil
}

// checkoutSessionPayload is the minimal slice of a checkout.session object
// the reconciler needs.
type checkoutSessionPayload struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	PaymentStatus   string `json:"payment_status"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

type chargePayload struct {
	ID             string `json:"id"`
	Customer       string `json:"customer"`
	ReceiptEmail   string `json:"receipt_email"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// ParseProviderEvent decodes a verified Stripe envelope into the closed
// variant type. Unknown or irrelevant event types come back as KindIgnored;
// a malformed payload of a relevant type is an error (acknowledged upstream
// as unrecoverable, never retried).
func ParseProviderEvent(event *stripe.Event) (*ProviderEvent, error) {
	pe := &ProviderEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    KindIgnored,
		RawBody: event.Data.Raw,
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		if sess.Mode != "" && sess.Mode != "subscription" {
			return pe, nil
		}
		if sess.PaymentStatus != "" && sess.PaymentStatus != "paid" {
			return pe, nil
		}
		userID, err := parseUserID(sess.Metadata)
		if err != nil {
			return nil, fmt.Errorf("checkout.session %s: %w", sess.ID, err)
		}
		plan, ok := NormalizePlan(sess.Metadata["plan"])
		if !ok {
			return nil, fmt.Errorf("checkout.session %s: unknown plan %q in metadata", sess.ID, sess.Metadata["plan"])
		}
		email := strings.ToLower(strings.TrimSpace(sess.CustomerEmail))
		if email == "" {
			email = strings.ToLower(strings.TrimSpace(sess.CustomerDetails.Email))
		}
		pe.Kind = KindPaymentConfirmed
		pe.Payment = &PaymentConfirmed{
			UserID:          userID,
			Plan:            plan,
			CustomerRef:     strings.TrimSpace(sess.Customer),
			SubscriptionRef: strings.TrimSpace(sess.Subscription),
			Email:           email,
		}
		return pe, nil

	case "charge.refunded":
		var ch chargePayload
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		email := strings.ToLower(strings.TrimSpace(ch.BillingDetails.Email))
		if email == "" {
			email = strings.ToLower(strings.TrimSpace(ch.ReceiptEmail))
		}
		pe.Kind = KindRefunded
		pe.Refund = &Refunded{
			CustomerRef: strings.TrimSpace(ch.Customer),
			Email:       email,
		}
		return pe, nil

	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		pe.Kind = KindCancelled
		pe.Cancel = &Cancelled{
			SubscriptionRef: strings.TrimSpace(sub.ID),
			CustomerRef:     strings.TrimSpace(sub.Customer),
		}
		return pe, nil

	default:
		return pe, nil
	}
}

func parseUserID(metadata map[string]string) (uint, error) {
	raw := strings.TrimSpace(metadata["user_id"])
	if raw == "" {
		return 0, fmt.Errorf("missing user_id metadata")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user_id metadata %q", raw)
	}
	return uint(id), nil
}
