package entity

type Employee struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	Status     string `json:"status,omitempty"`
	HiredAt    string `json:"hired_at,omitempty"`
}

type EmployeeFilters struct {
	Department string `json:"department,omitempty"`
	Status     string `json:"status,omitempty"`
	Search     string `json:"search,omitempty"`
}

type CreateEmployeeInput struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	HiredAt    string `json:"hired_at,omitempty"`
}

type UpdateEmployeeInput struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	Status     string `json:"status,omitempty"`
}

const (
	VacationStatusPending  = "pending"
	VacationStatusApproved = "approved"
)

type Vacation struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Status     string `json:"status"`
	ApprovedAt string `json:"approved_at,omitempty"`
}

type RequestVacationInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
