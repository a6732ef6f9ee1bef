package recordapi

// VisitRow is one visit-form submission as the record API returns it.
// Fields are loose strings; validation happens in the fetch layer.
type VisitRow struct {
	ID            string `json:"id" yaml:"id"`
	WorkerID      string `json:"user_id" yaml:"user_id"`
	BeneficiaryID string `json:"case_id" yaml:"case_id"`
	VisitType     string `json:"visit_type" yaml:"visit_type"`
	SubmittedAt   string `json:"submitted_at" yaml:"submitted_at"`
	// GPS is "lat lon altitude accuracy", space separated, or empty.
	GPS        string `json:"gps" yaml:"gps"`
	AppVersion int    `json:"app_version" yaml:"app_version"`
}

// ScheduleBlock is one visit-schedule slot on a registration record.
type ScheduleBlock struct {
	VisitType     string `json:"visit_type" yaml:"visit_type"`
	ScheduledDate string `json:"scheduled_date" yaml:"scheduled_date"`
	ExpiryDate    string `json:"expiry_date" yaml:"expiry_date"`
	Created       bool   `json:"created" yaml:"created"`
}

// RegistrationRow is one beneficiary registration record.
type RegistrationRow struct {
	CaseID          string          `json:"case_id" yaml:"case_id"`
	OwnerID         string          `json:"owner_id" yaml:"owner_id"`
	Name            string          `json:"name" yaml:"name"`
	Phone           string          `json:"phone" yaml:"phone"`
	Age             *int            `json:"age" yaml:"age"`
	DateOfBirth     string          `json:"dob" yaml:"dob"`
	Parity          string          `json:"parity" yaml:"parity"`
	HouseholdSize   *int            `json:"household_size" yaml:"household_size"`
	Eligible        bool            `json:"eligible" yaml:"eligible"`
	ExpectedEndDate string          `json:"expected_end_date" yaml:"expected_end_date"`
	RegisteredAt    string          `json:"registered_at" yaml:"registered_at"`
	Visits          []ScheduleBlock `json:"visits" yaml:"visits"`
}
