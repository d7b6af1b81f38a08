package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

var bookingTracer = otel.Tracer("healthcare.internal.booking")

// LinkComposer renders the operator hand-off link for a stored booking.
type LinkComposer interface {
	Link(b *Booking) string
}

// Feed receives committed booking events for live subscribers.
type Feed interface {
	Broadcast(ctx context.Context, entry events.Entry) error
}

// SubmitRequest is a booking submission.
type SubmitRequest struct {
	Draft          Draft
	IdempotencyKey string
}

// SubmitResult is returned only after the booking is durably stored.
type SubmitResult struct {
	Booking    *Booking `json:"booking"`
	HandoffURL string   `json:"handoff_url"`
	Replayed   bool     `json:"replayed"`
}

// MyBookings splits a requester's bookings around today.
type MyBookings struct {
	Upcoming []*Booking `json:"upcoming"`
	Past     []*Booking `json:"past"`
}

// Service runs the booking workflow: validate, build, persist, hand off.
type Service struct {
	repo     Repository
	builder  *Builder
	composer LinkComposer
	feed     Feed
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	slots    []string
	location *time.Location
	timeout  time.Duration
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithSlots sets the offered time slots and the timezone dates are read in.
func WithSlots(slots []string, loc *time.Location) ServiceOption {
	return func(s *Service) {
		if len(slots) > 0 {
			s.slots = slots
		}
		if loc != nil {
			s.location = loc
		}
	}
}

func WithFeed(f Feed) ServiceOption {
	return func(s *Service) { s.feed = f }
}

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, builder *Builder, composer LinkComposer, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("booking: repository required")
	}
	if builder == nil {
		panic("booking: builder required")
	}
	if composer == nil {
		panic("booking: link composer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		builder:  builder,
		composer: composer,
		logger:   logger,
		location: time.UTC,
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slots returns the configured time slots.
func (s *Service) Slots() []string { return s.slots }

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrPersistence) {
		return apperr.Persistence(fmt.Errorf("booking: store call timed out: %w", err))
	}
	return err
}

// Submit validates and stores a booking and returns the hand-off link. No
// link is produced unless the write succeeded.
func (s *Service) Submit(ctx context.Context, requesterID string, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.submit")
	defer span.End()
	draft := req.Draft
	subjectType := string(draft.SubjectType)
	span.SetAttributes(
		attribute.String("booking.subject_type", subjectType),
		attribute.String("booking.subject_ref", draft.SubjectRef),
	)
	logger := s.logger.WithContext(ctx)

	if requesterID == "" {
		return nil, apperr.AuthenticationRequired("")
	}
	// A retry must get the stored booking back even when the catalog or the
	// calendar moved on since the first attempt.
	if req.IdempotencyKey != "" {
		lookupCtx, cancel := s.storeCtx(ctx)
		stored, found, err := s.repo.FindByIdempotencyKey(lookupCtx, requesterID, req.IdempotencyKey)
		cancel()
		if err != nil {
			err = storeErr(err)
			s.metrics.ObserveSubmission(subjectType, "persistence_error")
			span.RecordError(err)
			return nil, err
		}
		if found {
			return s.replay(ctx, stored, req.IdempotencyKey), nil
		}
	}
	if err := draft.Validate(s.now(), s.slots, s.location); err != nil {
		s.metrics.ObserveSubmission(subjectType, "invalid")
		return nil, err
	}

	buildCtx, cancel := s.storeCtx(ctx)
	b, err := s.builder.Build(buildCtx, requesterID, draft)
	cancel()
	if err != nil {
		err = storeErr(err)
		if appErr, ok := apperr.As(err); ok && errors.Is(err, apperr.ErrStaleReference) {
			reason, _ := appErr.Details["reason"].(string)
			s.metrics.ObserveStaleReference(reason)
			s.metrics.ObserveSubmission(subjectType, "stale")
			logger.Info("booking rejected, stale catalog reference", "subject_ref", draft.SubjectRef, "reason", reason)
		} else {
			s.metrics.ObserveSubmission(subjectType, "error")
		}
		span.RecordError(err)
		return nil, err
	}
	b.IdempotencyKey = req.IdempotencyKey
	span.SetAttributes(attribute.String("booking.id", b.ID))

	event, err := events.NewEntry(events.TypeBookingCreated, b.ID, createdEvent(b), b.CreatedAt)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	writeCtx, cancel := s.storeCtx(ctx)
	stored, created, err := s.repo.Create(writeCtx, b, event)
	cancel()
	s.metrics.ObserveStoreCall("create", start, err)
	if err != nil {
		err = storeErr(err)
		span.RecordError(err)
		if errors.Is(err, apperr.ErrBookingConflict) {
			s.metrics.ObserveSubmission(subjectType, "conflict")
			logger.Info("booking rejected, slot taken",
				"subject_ref", b.SubjectRef,
				"date", b.Schedule.Date,
				"time", b.Schedule.Time,
			)
			return nil, s.withAlternatives(ctx, err, b)
		}
		s.metrics.ObserveSubmission(subjectType, "persistence_error")
		logger.Error("failed to persist booking", "error", err, "booking_id", b.ID, "subject_ref", b.SubjectRef)
		return nil, err
	}

	if !created {
		return s.replay(ctx, stored, req.IdempotencyKey), nil
	}
	link := s.composer.Link(stored)
	s.metrics.ObserveHandoff()

	s.metrics.ObserveSubmission(subjectType, "created")
	s.broadcast(ctx, event)
	logger.Info("booking created",
		"booking_id", stored.ID,
		"subject_type", subjectType,
		"subject_ref", stored.SubjectRef,
		"service_collection", stored.ServiceCollection,
	)
	return &SubmitResult{Booking: stored, HandoffURL: link}, nil
}

func (s *Service) replay(ctx context.Context, stored *Booking, key string) *SubmitResult {
	link := s.composer.Link(stored)
	s.metrics.ObserveHandoff()
	s.metrics.ObserveSubmission(string(stored.SubjectType), "replayed")
	s.logger.WithContext(ctx).Info("booking submission replayed", "booking_id", stored.ID, "idempotency_key", key)
	return &SubmitResult{Booking: stored, HandoffURL: link, Replayed: true}
}

func (s *Service) withAlternatives(ctx context.Context, conflict error, b *Booking) error {
	free, err := s.AvailableSlots(ctx, b.SubjectRef, b.Schedule.Date)
	if err != nil {
		s.logger.WithContext(ctx).Warn("could not load alternative slots", "error", err, "subject_ref", b.SubjectRef)
		return conflict
	}
	return apperr.Conflict(free)
}

func (s *Service) broadcast(ctx context.Context, entry events.Entry) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Broadcast(ctx, entry); err != nil {
		s.logger.WithContext(ctx).Warn("live feed publish failed", "error", err, "event_type", entry.Type, "booking_id", entry.AggregateID)
	}
}

// Get returns a booking to its owner or, when operator is set, to staff.
// Other requesters see not found.
func (s *Service) Get(ctx context.Context, requesterID, id string, operator bool) (*Booking, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	b, err := s.repo.Get(storeCtx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if !operator && b.RequesterID != requesterID {
		return nil, apperr.NotFound("booking")
	}
	return b, nil
}

// ListMine returns the requester's bookings, newest first, split by date.
func (s *Service) ListMine(ctx context.Context, requesterID string) (*MyBookings, error) {
	start := time.Now()
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	all, err := s.repo.ListByRequester(storeCtx, requesterID)
	s.metrics.ObserveStoreCall("list_by_requester", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	today := s.now().In(s.location).Format(dateLayout)
	out := &MyBookings{Upcoming: []*Booking{}, Past: []*Booking{}}
	for _, b := range all {
		if isUpcoming(b, today) {
			out.Upcoming = append(out.Upcoming, b)
		} else {
			out.Past = append(out.Past, b)
		}
	}
	return out, nil
}

func isUpcoming(b *Booking, today string) bool {
	if b.Schedule == nil {
		return b.Status.Active()
	}
	// Dates are YYYY-MM-DD so string order is date order.
	return b.Status.Active() && b.Schedule.Date >= today
}

// ListForService returns the operational view of one service collection.
func (s *Service) ListForService(ctx context.Context, collection string) ([]*Booking, error) {
	if !validCollection(collection) {
		return nil, apperr.Validation(map[string]string{"collection": "unknown service collection"})
	}
	start := time.Now()
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	bookings, err := s.repo.ListByService(storeCtx, collection)
	s.metrics.ObserveStoreCall("list_by_service", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	if bookings == nil {
		bookings = []*Booking{}
	}
	return bookings, nil
}

func validCollection(collection string) bool {
	for _, c := range Collections() {
		if c == collection {
			return true
		}
	}
	return false
}

// Cancel lets a requester cancel their own active booking.
func (s *Service) Cancel(ctx context.Context, requesterID, id string) (*Booking, error) {
	b, err := s.Get(ctx, requesterID, id, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, requesterID, b, StatusCancelled)
}

// ChangeStatus is the operator transition (confirm, complete, cancel).
func (s *Service) ChangeStatus(ctx context.Context, actor, id string, to Status) (*Booking, error) {
	b, err := s.Get(ctx, actor, id, true)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, b, to)
}

func (s *Service) transition(ctx context.Context, actor string, b *Booking, to Status) (*Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.change_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", b.ID),
		attribute.String("booking.from", string(b.Status)),
		attribute.String("booking.to", string(to)),
	)

	if !CanTransition(b.Status, to) {
		return nil, apperr.Validation(map[string]string{
			"status": fmt.Sprintf("cannot change a %s booking to %s", b.Status, to),
		})
	}
	now := s.now().UTC()
	event, err := events.NewEntry(events.TypeBookingStatusChanged, b.ID, events.BookingStatusChangedV1{
		BookingID:         b.ID,
		ServiceCollection: b.ServiceCollection,
		From:              string(b.Status),
		To:                string(to),
		ChangedBy:         actor,
		ChangedAt:         now,
	}, now)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	updated, err := s.repo.UpdateStatus(storeCtx, b.ID, b.Status, to, now, event)
	s.metrics.ObserveStoreCall("update_status", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, storeErr(err)
	}
	s.metrics.ObserveStatusChange(string(b.Status), string(to))
	s.broadcast(ctx, event)
	s.logger.WithContext(ctx).Info("booking status changed",
		"booking_id", b.ID,
		"from", string(b.Status),
		"to", string(to),
		"actor", actor,
	)
	return updated, nil
}

// AvailableSlots returns the configured slots not held on date, in order.
// Unknown and retired doctors are reported as not found.
func (s *Service) AvailableSlots(ctx context.Context, subjectRef, date string) ([]string, error) {
	if _, err := time.ParseInLocation(dateLayout, date, s.location); err != nil {
		return nil, apperr.Validation(map[string]string{"date": "date must be YYYY-MM-DD"})
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	doctor, err := s.builder.catalog.Get(storeCtx, catalog.KindDoctor, subjectRef)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound(string(catalog.KindDoctor))
		}
		return nil, storeErr(err)
	}
	if !doctor.Available() {
		return nil, apperr.NotFound(string(catalog.KindDoctor))
	}
	taken, err := s.repo.TakenSlots(storeCtx, subjectRef, date, s.slots)
	if err != nil {
		return nil, storeErr(err)
	}
	free := make([]string, 0, len(s.slots))
	for _, slot := range s.slots {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	return free, nil
}

func createdEvent(b *Booking) events.BookingCreatedV1 {
	ev := events.BookingCreatedV1{
		BookingID:         b.ID,
		RequesterID:       b.RequesterID,
		SubjectType:       string(b.SubjectType),
		SubjectRef:        b.SubjectRef,
		SubjectName:       b.SubjectName,
		ServiceCollection: b.ServiceCollection,
		PatientName:       b.Patient.Name,
		PatientPhone:      b.Patient.Phone,
		Price:             b.Price.String(),
		PaymentMethod:     string(b.PaymentMethod),
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
	}
	if b.Schedule != nil {
		ev.Date = b.Schedule.Date
		ev.Time = b.Schedule.Time
	}
	return ev
}
