package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service ties the ledger, the transition authority and the snapshot feed
// together. All mutations go through it so that every accepted write is
// followed by a fan-out to the subscribed stations.
type Service struct {
	repo      Repository
	authority *Authority
	views     *Views
	feed      *Feed
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, views *Views, feed *Feed, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		authority: NewAuthority(repo, log),
		views:     views,
		feed:      feed,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service and authority clocks. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.authority.SetClock(now)
}

// Authority exposes the transition gatekeeper.
func (s *Service) Authority() *Authority {
	return s.authority
}

// CreateVisit originates a visit at reception. Beyond the presence of a
// patient reference nothing is validated here; duplicate prevention is a
// front-desk concern, not a ledger invariant. The visit becomes immediately
// visible to the reception and dashboard views, and to the lab view once its
// status advances if a test order was pre-filled.
func (s *Service) CreateVisit(ctx context.Context, patientID uuid.UUID, patientName string, vt VisitType, testOrder string) (*Visit, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if vt == "" {
		vt = TypeNew
	}
	if !validTypes[vt] {
		return nil, fmt.Errorf("%w: visit type %s", ErrInvalidInput, vt)
	}

	now := s.now()
	v := &Visit{
		PatientID:   patientID,
		PatientName: patientName,
		Date:        now,
		Status:      StatusReception,
		Type:        vt,
	}
	if testOrder != "" {
		v.TestOrder = &testOrder
		ts := TestProcessing
		v.TestStatus = &ts
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("visit_id", v.ID.String()).
		Str("patient_id", patientID.String()).
		Str("type", string(vt)).
		Msg("visit created")
	s.publish(ctx)
	return v, nil
}

// RequestTransition forwards a station's proposed status change to the
// authority and fans out the result on success.
func (s *Service) RequestTransition(ctx context.Context, id uuid.UUID, currentKnown, target Status, fields Fields) (*Visit, error) {
	v, err := s.authority.RequestTransition(ctx, id, currentKnown, target, fields)
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return v, nil
}

// BeginTest marks a lab order as in progress.
func (s *Service) BeginTest(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.authority.BeginTest(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return v, nil
}

// CompleteTest records a lab result.
func (s *Service) CompleteTest(ctx context.Context, id uuid.UUID, result string) (*Visit, error) {
	v, err := s.authority.CompleteTest(ctx, id, result)
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return v, nil
}

// GetVisit returns one visit.
func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

// DeleteVisit removes a visit administratively, e.g. a cancelled booking.
func (s *Service) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("visit_id", id.String()).Msg("visit deleted")
	s.publish(ctx)
	return nil
}

// StationQueue returns the current ordered queue for a station.
func (s *Service) StationQueue(ctx context.Context, st Station) ([]*Visit, error) {
	view, err := s.views.ForStation(st)
	if err != nil {
		return nil, err
	}
	visits, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return view.Apply(visits), nil
}

// DashboardSummary is the front-of-house aggregate: today's queue plus
// per-status counts.
type DashboardSummary struct {
	Counts DashboardCounts `json:"counts"`
	Visits []*Visit        `json:"visits"`
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	queue, err := s.StationQueue(ctx, StationDashboard)
	if err != nil {
		return nil, err
	}
	return &DashboardSummary{
		Counts: CountByStatus(queue),
		Visits: queue,
	}, nil
}

// Subscribe opens a live queue subscription for a station.
func (s *Service) Subscribe(ctx context.Context, st Station) (*Subscription, []*Visit, error) {
	if s.feed == nil {
		return nil, nil, fmt.Errorf("live feed not configured")
	}
	return s.feed.Subscribe(ctx, st)
}

func (s *Service) publish(ctx context.Context) {
	if s.feed != nil {
		s.feed.Publish(ctx)
	}
}
