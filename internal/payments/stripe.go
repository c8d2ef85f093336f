package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	metadataBackingID = "backing_id"
	metadataProjectID = "project_id"
)

// IntentAPI is satisfied by the V1PaymentIntents service of *stripe.Client.
type IntentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
}

// BackingSettler moves a backing along once its payment settles.
type BackingSettler interface {
	ConfirmBacking(ctx context.Context, backingID string) (*types.Backing, error)
	VoidBacking(ctx context.Context, backingID string) (*types.Backing, error)
}

type Gateway struct {
	intents       IntentAPI
	webhookSecret string
	logger        *logrus.Logger
}

func NewGateway(intents IntentAPI, webhookSecret string, logger *logrus.Logger) (*Gateway, error) {
	if intents == nil {
		return nil, errors.New("payments: intent api is required")
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Gateway{intents: intents, webhookSecret: webhookSecret, logger: logger}, nil
}

// NewStripeGateway returns nil when no secret key is configured; backings are
// then recorded without a payment intent.
func NewStripeGateway(secretKey, webhookSecret string, logger *logrus.Logger) (*Gateway, error) {
	if secretKey == "" {
		return nil, nil
	}

	client := stripe.NewClient(secretKey)

	return NewGateway(client.V1PaymentIntents, webhookSecret, logger)
}

// CreatePaymentIntent keys the request on the backing ID so a retried call
// never charges twice.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, backing *types.Backing, currency string) (string, error) {
	if currency == "" {
		currency = types.DefaultCurrency
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(backing.TotalAmountCents),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			metadataBackingID: backing.ID,
			metadataProjectID: backing.ProjectID,
		},
	}
	if backing.BackerEmail != "" {
		params.ReceiptEmail = stripe.String(backing.BackerEmail)
	}
	params.SetIdempotencyKey(backing.ID)

	intent, err := g.intents.Create(ctx, params)
	if err != nil {
		return "", &types.Error{Code: types.CodePayment, Err: err}
	}

	return intent.ID, nil
}

type EventKind string

const (
	EventPaymentSucceeded EventKind = "succeeded"
	EventPaymentFailed    EventKind = "failed"
	EventIgnored          EventKind = "ignored"
)

type WebhookEvent struct {
	ID              string
	Kind            EventKind
	BackingID       string
	PaymentIntentID string
}

// ParseWebhook verifies the Stripe-Signature header and extracts the backing
// the payment intent was created for.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, types.NewPermissionError("webhooks are not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &types.Error{Code: types.CodePermissionDenied, Detail: "invalid webhook signature", Err: err}
	}

	out := &WebhookEvent{ID: event.ID, Kind: EventIgnored}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Kind = EventPaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		out.Kind = EventPaymentFailed
	default:
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, types.NewValidationError("data", fmt.Sprintf("malformed payment intent: %s", err))
	}

	out.PaymentIntentID = intent.ID
	out.BackingID = intent.Metadata[metadataBackingID]

	return out, nil
}

// HandleWebhook settles the backing named by a verified webhook. Intents that
// were not created for a backing are acknowledged and skipped.
func (g *Gateway) HandleWebhook(ctx context.Context, settler BackingSettler, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := g.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	entry := g.logger.WithFields(logrus.Fields{
		"event_id":          event.ID,
		"kind":              event.Kind,
		"backing_id":        event.BackingID,
		"payment_intent_id": event.PaymentIntentID,
	})

	if event.Kind == EventIgnored || event.BackingID == "" {
		entry.Debug("webhook ignored")
		return event, nil
	}

	switch event.Kind {
	case EventPaymentSucceeded:
		_, err = settler.ConfirmBacking(ctx, event.BackingID)
	case EventPaymentFailed:
		_, err = settler.VoidBacking(ctx, event.BackingID)
	}
	if err != nil {
		entry.WithError(err).Error("failed to settle backing from webhook")
		return nil, err
	}

	entry.Info("backing settled from webhook")

	return event, nil
}
