package entity

const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRevoked  = "revoked"
)

type Invitation struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	TeamID      string `json:"team_id,omitempty"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status"`
	SentAt      string `json:"sent_at,omitempty"`
	ResendCount int    `json:"resend_count,omitempty"`
}

type InvitationFilters struct {
	Status string `json:"status,omitempty"`
	TeamID string `json:"team_id,omitempty"`
}

type CreateInvitationInput struct {
	Email  string `json:"email"`
	TeamID string `json:"team_id,omitempty"`
	Role   string `json:"role,omitempty"`
}
