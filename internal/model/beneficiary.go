package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// BeneficiaryMetadata holds demographic and eligibility facts about a tracked person.
type BeneficiaryMetadata struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	Age             int       `json:"age,omitempty"`
	DateOfBirth     time.Time `json:"date_of_birth,omitempty"`
	Parity          string    `json:"parity,omitempty"`
	HouseholdSize   int       `json:"household_size,omitempty"`
	Eligible        bool      `json:"eligible"`
	ExpectedEndDate time.Time `json:"expected_end_date,omitempty"`
	RegisteredAt    time.Time `json:"registered_at,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
}

// NewBeneficiary validates the identifying fields of a beneficiary record and
// normalizes its phone number.
func NewBeneficiary(m BeneficiaryMetadata) (BeneficiaryMetadata, error) {
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return BeneficiaryMetadata{}, eris.New("model: beneficiary: missing id")
	}
	if m.Age < 0 {
		return BeneficiaryMetadata{}, eris.Errorf("model: beneficiary %s: negative age %d", m.ID, m.Age)
	}
	if m.HouseholdSize < 0 {
		return BeneficiaryMetadata{}, eris.Errorf("model: beneficiary %s: negative household size %d", m.ID, m.HouseholdSize)
	}
	m.Phone = NormalizePhone(m.Phone)
	m.Parity = strings.TrimSpace(m.Parity)
	m.OwnerID = strings.TrimSpace(m.OwnerID)
	if m.Age == 0 && !m.DateOfBirth.IsZero() && !m.RegisteredAt.IsZero() {
		m.Age = ageAt(m.DateOfBirth, m.RegisteredAt)
	}
	return m, nil
}

// NormalizePhone strips everything but digits and drops a leading "+"/"00"
// country prefix marker so that formatting differences compare equal.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimPrefix(b.String(), "00")
}

func ageAt(dob, at time.Time) int {
	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
