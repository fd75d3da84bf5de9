package entity

type OnboardingStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Order       int    `json:"order"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type OnboardingProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

func (p OnboardingProgress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}
