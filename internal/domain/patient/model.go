// Package patient holds the registry of people the clinic sees. A visit
// references a patient by id; the registry is the source of truth for
// demographics.
package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is one registered person.
type Patient struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	MRN       string     `json:"mrn" db:"mrn"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  string     `json:"last_name" db:"last_name"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Gender    string     `json:"gender,omitempty" db:"gender"`
	Phone     string     `json:"phone,omitempty" db:"phone"`
	Active    bool       `json:"active" db:"active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// DisplayName is the name shown on station queues.
func (p *Patient) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Clone returns a deep copy.
func (p *Patient) Clone() *Patient {
	cp := *p
	if p.BirthDate != nil {
		bd := *p.BirthDate
		cp.BirthDate = &bd
	}
	return &cp
}
