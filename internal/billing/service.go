package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/mentiq/dashboard-api/internal/backend"
)

// ErrInvalidSignature is returned when a webhook payload fails signature
// verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Service proxies Stripe checkout and webhooks, mapping Stripe events into
// the backend's updateSubscription/recordPayment contract. No billing state
// lives here.
type Service struct {
	webhookSecret string
	successURL    string
	cancelURL     string
	backend       *backend.Client
	plans         map[string]Plan
}

// Config holds Stripe configuration.
type Config struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

// Plan is one purchasable tier.
type Plan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	StripePriceID string   `json:"stripePriceId"`
	MonthlyPrice  int64    `json:"monthlyPrice"` // in cents
	Features      []string `json:"features"`
}

func NewService(cfg Config, backendClient *backend.Client) *Service {
	stripe.Key = cfg.SecretKey

	return &Service{
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		backend:       backendClient,
		plans:         loadPlans(),
	}
}

// Plans returns the plan catalog in ascending price order.
func (s *Service) Plans() []Plan {
	plans := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].MonthlyPrice < plans[j].MonthlyPrice })
	return plans
}

// CreateCheckoutSession starts a Stripe subscription checkout for a user.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, email, planID string) (string, error) {
	plan, ok := s.plans[planID]
	if !ok {
		return "", fmt.Errorf("unknown plan %q", planID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(userID),
		CustomerEmail:     stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID, "plan_id": planID},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies a Stripe webhook signature and forwards the mapped
// event to the backend. Unhandled event types are acknowledged silently.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "customer.subscription.updated", "customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("failed to decode subscription event: %w", err)
		}
		return s.handleSubscriptionChanged(ctx, &subscription)
	case "invoice.payment_succeeded":
		return s.handleInvoice(ctx, event.Data.Raw, "succeeded")
	case "invoice.payment_failed":
		return s.handleInvoice(ctx, event.Data.Raw, "failed")
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to decode checkout event: %w", err)
		}
		log.Printf("checkout completed for user %s", sess.ClientReferenceID)
		return nil
	}

	return nil
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, subscription *stripe.Subscription) error {
	userID := subscription.Metadata["user_id"]
	if userID == "" {
		return fmt.Errorf("subscription %s missing user_id metadata", subscription.ID)
	}

	planID := subscription.Metadata["plan_id"]
	if planID == "" && subscription.Items != nil && len(subscription.Items.Data) > 0 {
		planID = s.planByPriceID(subscription.Items.Data[0].Price.ID)
	}

	return s.backend.UpdateSubscription(ctx, backend.UpdateSubscriptionRequest{
		UserID:             userID,
		PlanID:             planID,
		Status:             string(subscription.Status),
		SubscriptionID:     subscription.ID,
		CurrentPeriodStart: time.Unix(subscription.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(subscription.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  subscription.CancelAtPeriodEnd,
	})
}

func (s *Service) handleInvoice(ctx context.Context, raw json.RawMessage, status string) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return fmt.Errorf("failed to decode invoice event: %w", err)
	}

	userID := invoice.Metadata["user_id"]
	if userID == "" && invoice.Subscription != nil {
		userID = invoice.Subscription.Metadata["user_id"]
	}
	if userID == "" {
		// Backend resolves the account by customer email when no ID is present.
		userID = invoice.CustomerEmail
	}

	return s.backend.RecordPayment(ctx, backend.RecordPaymentRequest{
		UserID:    userID,
		InvoiceID: invoice.ID,
		Amount:    invoice.AmountPaid,
		Currency:  string(invoice.Currency),
		Status:    status,
		PaidAt:    time.Unix(invoice.Created, 0).UTC(),
	})
}

func (s *Service) planByPriceID(priceID string) string {
	for id, plan := range s.plans {
		if plan.StripePriceID == priceID {
			return id
		}
	}
	return ""
}

func loadPlans() map[string]Plan {
	return map[string]Plan{
		"launch": {
			ID:            "launch",
			Name:          "Launch",
			StripePriceID: "price_launch_monthly",
			MonthlyPrice:  2900,
			Features:      []string{"Health scores", "Basic dashboards"},
		},
		"growth": {
			ID:            "growth",
			Name:          "Growth",
			StripePriceID: "price_growth_monthly",
			MonthlyPrice:  9900,
			Features:      []string{"Health scores", "Retention emails", "Mailchimp sync"},
		},
		"pro": {
			ID:            "pro",
			Name:          "Pro",
			StripePriceID: "price_pro_monthly",
			MonthlyPrice:  24900,
			Features:      []string{"Everything in Growth", "Score event stream", "Priority support"},
		},
		"enterprise": {
			ID:            "enterprise",
			Name:          "Enterprise",
			StripePriceID: "price_enterprise_monthly",
			MonthlyPrice:  99900,
			Features:      []string{"Everything in Pro", "Custom weighting", "SLA"},
		},
	}
}
