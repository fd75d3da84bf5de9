package entity

const (
	FacturationStatusDraft = "draft"
	FacturationStatusSent  = "sent"
	FacturationStatusPaid  = "paid"
)

type Facturation struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Client      string `json:"client"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	IssuedAt    string `json:"issued_at,omitempty"`
	SentAt      string `json:"sent_at,omitempty"`
}

type FacturationFilters struct {
	Status  string `json:"status,omitempty"`
	Client  string `json:"client,omitempty"`
	Page    int    `json:"page,omitempty"`
	PerPage int    `json:"per_page,omitempty"`
}

type CreateFacturationInput struct {
	Number      string `json:"number"`
	Client      string `json:"client"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
	IssuedAt    string `json:"issued_at,omitempty"`
}

type UpdateFacturationInput struct {
	Client      string `json:"client,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Status      string `json:"status,omitempty"`
}
