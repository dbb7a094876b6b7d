package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidTransition is returned when a proposed status change is not an
// edge of the status graph, or its required co-written fields are missing.
// It is always reported back to the requesting station, never coerced to the
// nearest valid edge and never queued for retry.
var ErrInvalidTransition = errors.New("invalid visit transition")

// edge describes one allowed status change and the fields that must be
// written together with it.
type edge struct {
	required []string
}

// transitions is the status graph. reception → consulting → {testing,
// treatment} → completed; nothing ever moves backwards. Cancellation is an
// administrative delete, not a status.
var transitions = map[Status]map[Status]edge{
	StatusReception: {
		// The call itself signals "patient entered the exam room".
		StatusConsulting: {},
	},
	StatusConsulting: {
		StatusTesting:   {required: []string{FieldTestOrder}},
		StatusTreatment: {required: []string{FieldDiagnosis, FieldTreatmentNote}},
	},
	StatusTesting: {
		StatusTreatment: {},
		StatusCompleted: {},
	},
	StatusTreatment: {
		StatusCompleted: {},
	},
}

// Authority is the single gatekeeper for status changes. It validates a
// proposed (from, to) pair, checks the co-written fields, stamps updated_at
// with its own clock, and applies everything as one merge write.
type Authority struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewAuthority(repo Repository, log zerolog.Logger) *Authority {
	return &Authority{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the authority's clock. Test hook.
func (a *Authority) SetClock(now func() time.Time) {
	a.now = now
}

// RequestTransition validates and applies a status change. currentKnown is
// the status as last seen by the caller; if the stored status has moved on
// since, that is logged as a stale read but does not block the write unless
// the stored status makes the proposed edge invalid. Stations operate on
// physically disjoint slices of the record, so the merge favors availability
// over optimistic-concurrency rejection.
func (a *Authority) RequestTransition(ctx context.Context, id uuid.UUID, currentKnown, target Status, fields Fields) (*Visit, error) {
	cur, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cur.Status != currentKnown {
		a.log.Warn().
			Str("visit_id", id.String()).
			Str("known_status", string(currentKnown)).
			Str("stored_status", string(cur.Status)).
			Str("target_status", string(target)).
			Msg("stale status on transition request")
	}

	rule, ok := transitions[cur.Status][target]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target)
	}
	for _, name := range rule.required {
		if !hasValue(fields, name) {
			return nil, fmt.Errorf("%w: %s -> %s requires %s", ErrInvalidTransition, cur.Status, target, name)
		}
	}

	merged := Fields{FieldStatus: target}
	for name, val := range fields {
		merged[name] = val
	}
	// A fresh lab order starts in processing; the lab station flips it to
	// completed together with the result.
	if hasValue(fields, FieldTestOrder) && cur.TestStatus == nil && !hasValue(fields, FieldTestStatus) {
		merged[FieldTestStatus] = TestProcessing
	}
	if target == StatusCompleted && cur.TreatmentCompletedAt == nil {
		merged[FieldTreatmentCompletedAt] = a.now()
	}

	updated, err := a.repo.ApplyFields(ctx, id, merged)
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Str("visit_id", id.String()).
		Str("from", string(cur.Status)).
		Str("to", string(target)).
		Msg("visit transition applied")
	return updated, nil
}

// BeginTest marks a visit's outstanding lab order as in progress.
func (a *Authority) BeginTest(ctx context.Context, id uuid.UUID) (*Visit, error) {
	cur, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.HasTestOrder() {
		return nil, fmt.Errorf("%w: visit has no test order", ErrInvalidTransition)
	}
	return a.repo.ApplyFields(ctx, id, Fields{FieldTestStatus: TestProcessing})
}

// CompleteTest records a lab result and flips the order's test status to
// completed. The visit's station status is deliberately untouched: a patient
// can be under treatment while the lab finishes the panel.
func (a *Authority) CompleteTest(ctx context.Context, id uuid.UUID, result string) (*Visit, error) {
	cur, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.HasTestOrder() {
		return nil, fmt.Errorf("%w: visit has no test order", ErrInvalidTransition)
	}
	if result == "" {
		return nil, fmt.Errorf("%w: completing a test order requires a result", ErrInvalidTransition)
	}

	updated, err := a.repo.ApplyFields(ctx, id, Fields{
		FieldTestResult: result,
		FieldTestStatus: TestCompleted,
	})
	if err != nil {
		return nil, err
	}

	a.log.Info().
		Str("visit_id", id.String()).
		Str("test_order", *cur.TestOrder).
		Msg("lab result recorded")
	return updated, nil
}

func hasValue(fields Fields, name string) bool {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return false
	}
	if s, isStr := raw.(string); isStr && s == "" {
		return false
	}
	return true
}
