package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service validates registry operations.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// RegisterInput carries the fields the front desk fills in.
type RegisterInput struct {
	MRN       string     `json:"mrn"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Phone     string     `json:"phone,omitempty"`
}

// Register creates a patient record. The MRN is assigned when the caller
// leaves it blank.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Patient, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" && in.LastName == "" {
		return nil, fmt.Errorf("patient name is required")
	}

	mrn := strings.TrimSpace(in.MRN)
	if mrn == "" {
		mrn = newMRN()
	}

	p := &Patient{
		MRN:       mrn,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		BirthDate: in.BirthDate,
		Gender:    in.Gender,
		Phone:     in.Phone,
		Active:    true,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("patient_id", p.ID.String()).
		Str("mrn", p.MRN).
		Msg("patient registered")
	return p, nil
}

// Get returns one patient.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Lookup finds a patient by MRN.
func (s *Service) Lookup(ctx context.Context, mrn string) (*Patient, error) {
	return s.repo.GetByMRN(ctx, strings.TrimSpace(mrn))
}

// Update replaces the mutable demographics of an existing record.
func (s *Service) Update(ctx context.Context, p *Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		return nil, fmt.Errorf("patient id is required")
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Search matches name or MRN fragments against active patients.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*Patient, error) {
	return s.repo.Search(ctx, query, limit)
}

// newMRN mints a front-desk friendly record number. Uniqueness is enforced
// by the registry, not here.
func newMRN() string {
	id := uuid.New()
	return fmt.Sprintf("MRN-%s", strings.ToUpper(id.String()[:8]))
}
