package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func stripeEvent(t *testing.T, id, eventType string, payload string) *stripe.Event {
	t.Helper()
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"payment_status": "paid",
		"customer": "cus_1",
		"subscription": "sub_1",
		"customer_details": {"email": "Reader@Example.com"},
		"metadata": {"user_id": "42", "plan": "traveler"}
	}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	require.Equal(t, KindPaymentConfirmed, pe.Kind)
	require.NotNil(t, pe.Payment)
	assert.Equal(t, uint(42), pe.Payment.UserID)
	assert.Equal(t, PlanTraveler, pe.Payment.Plan)
	assert.Equal(t, "cus_1", pe.Payment.CustomerRef)
	assert.Equal(t, "sub_1", pe.Payment.SubscriptionRef)
	assert.Equal(t, "reader@example.com", pe.Payment.Email)
}

func TestParseCheckoutCompletedUnpaidIgnored(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"payment_status": "unpaid",
		"metadata": {"user_id": "42", "plan": "traveler"}
	}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, pe.Kind)
	assert.Nil(t, pe.Payment)
}

func TestParseCheckoutCompletedBadMetadata(t *testing.T) {
	missingUser := stripeEvent(t, "evt_1", "checkout.session.completed", `{
		"id": "cs_1", "payment_status": "paid", "metadata": {"plan": "traveler"}
	}`)
	_, err := ParseProviderEvent(missingUser)
	assert.Error(t, err)

	badPlan := stripeEvent(t, "evt_2", "checkout.session.completed", `{
		"id": "cs_2", "payment_status": "paid", "metadata": {"user_id": "42", "plan": "gold"}
	}`)
	_, err = ParseProviderEvent(badPlan)
	assert.Error(t, err)
}

func TestParseChargeRefunded(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "charge.refunded", `{
		"id": "ch_1",
		"customer": "cus_1",
		"billing_details": {"email": "reader@example.com"}
	}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	require.Equal(t, KindRefunded, pe.Kind)
	assert.Equal(t, "cus_1", pe.Refund.CustomerRef)
	assert.Equal(t, "reader@example.com", pe.Refund.Email)
}

func TestParseChargeRefundedEmailFallback(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "charge.refunded", `{
		"id": "ch_1",
		"receipt_email": "Fallback@Example.com",
		"billing_details": {}
	}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", pe.Refund.Email)
}

func TestParseSubscriptionDeleted(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "customer.subscription.deleted", `{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "canceled"
	}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	require.Equal(t, KindCancelled, pe.Kind)
	assert.Equal(t, "sub_1", pe.Cancel.SubscriptionRef)
	assert.Equal(t, "cus_1", pe.Cancel.CustomerRef)
}

func TestParseUnknownEventTypeIgnored(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "invoice.finalized", `{"id": "in_1"}`)

	pe, err := ParseProviderEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, pe.Kind)
	assert.Equal(t, "invoice.finalized", pe.Type)
}

func TestParseMalformedPayload(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "charge.refunded", `{"customer": 12`)

	_, err := ParseProviderEvent(ev)
	assert.Error(t, err)
}

func TestVerifyEventBadSignature(t *testing.T) {
	_, err := VerifyEvent([]byte(`{}`), "t=1,v1=deadbeef", "whsec_test")
	assert.ErrorIs(t, err, ErrEventUnverified)
}
