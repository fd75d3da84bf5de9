package entity

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

type SubscriptionPlan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	Interval   string   `json:"interval"`
	Features   []string `json:"features,omitempty"`
}

type Subscription struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	PlanID           string `json:"plan_id"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
	CanceledAt       string `json:"canceled_at,omitempty"`
}

type SubscribeInput struct {
	PlanID string `json:"plan_id"`
}
