package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"clinicflow/internal/notify"
	"clinicflow/internal/patient"
	"clinicflow/internal/queue/allocator"
	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/internal/queue/lifecycle"
	"clinicflow/internal/queue/repository"
	"clinicflow/internal/queue/validator"
	"clinicflow/pkg/config"
	apperrors "clinicflow/pkg/errors"
	"clinicflow/pkg/locale"
	"clinicflow/pkg/model"
	"clinicflow/pkg/sanitizer"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// callNextAttempts bounds how often CallNext moves on after losing the head of
// the queue to a concurrent caller.
const callNextAttempts = 3

type QueueService interface {
	Register(ctx context.Context, req *model.RegisterRequest, actor string) (*model.QueueEntry, error)
	CallNext(ctx context.Context, date, actor string) (*model.QueueEntry, error)
	Call(ctx context.Context, id, actor string) (*model.QueueEntry, error)
	StartConsultation(ctx context.Context, id, actor string) (*model.QueueEntry, error)
	Complete(ctx context.Context, id, actor string) (*model.QueueEntry, error)
	Cancel(ctx context.Context, id string, req *model.CancelRequest, actor string) (*model.QueueEntry, error)
	UpdatePriority(ctx context.Context, id string, req *model.PriorityUpdate, actor string) (*model.QueueEntry, error)

	Get(ctx context.Context, id string) (*model.QueueEntry, error)
	ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error)
	Stats(ctx context.Context, date string) (*model.QueueStats, error)
}

type queueService struct {
	entries   repository.QueueEntryRepository
	sequences repository.SequenceRepository
	allocator allocator.Allocator
	lifecycle *lifecycle.Lifecycle
	directory patient.Directory
	hub       notify.NotificationHub
	validator *validator.QueueValidator
	cfg       *config.Config
	tracer    trace.Tracer
	now       func() time.Time
}

func NewQueueService(
	entries repository.QueueEntryRepository,
	sequences repository.SequenceRepository,
	alloc allocator.Allocator,
	lc *lifecycle.Lifecycle,
	directory patient.Directory,
	hub notify.NotificationHub,
	validator *validator.QueueValidator,
	cfg *config.Config,
) QueueService {
	return &queueService{
		entries:   entries,
		sequences: sequences,
		allocator: alloc,
		lifecycle: lc,
		directory: directory,
		hub:       hub,
		validator: validator,
		cfg:       cfg,
		tracer:    otel.Tracer("clinicflow/internal/queue/service"),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *queueService) Register(ctx context.Context, req *model.RegisterRequest, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.Register")
	defer func() { finish(span, err) }()

	req.PatientRef = sanitizer.NormalizeRef(req.PatientRef)
	req.Note = sanitizer.NormalizeNote(req.Note)

	if err := s.validator.ValidateRegister(req); err != nil {
		s.cfg.Log.Warn("Queue registration validation failed",
			"patient_ref", req.PatientRef,
			"error", err,
		)
		return nil, validationError("Queue registration validation failed", err)
	}

	date := s.dateOrToday(req.Date)
	priority := s.cfg.DefaultPriority
	if req.Priority != nil {
		priority = sanitizer.ClampPriority(*req.Priority, s.cfg.MinPriority, s.cfg.MaxPriority)
	}
	span.SetAttributes(
		attribute.String("queue.patient_ref", req.PatientRef),
		attribute.String("queue.date", date),
	)

	existing, err := s.entries.FindActiveByPatient(ctx, req.PatientRef, date)
	if err == nil {
		return nil, apperrors.DuplicateActiveEntry(req.PatientRef, date, fmt.Errorf("%w: %s", queueerrors.ErrDuplicateActiveEntry, existing.QueueNumber))
	}
	if !errors.Is(err, queueerrors.ErrNotFound) {
		s.cfg.Log.Error("Failed to check for an active queue entry",
			"patient_ref", req.PatientRef,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to register patient", err)
	}

	seq, err := s.allocate(ctx, model.SequenceKey(date))
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry = &model.QueueEntry{
		ID:              uuid.NewString(),
		QueueNumber:     model.FormatQueueNumber(date, seq),
		PatientRef:      req.PatientRef,
		Date:            date,
		SequenceNumber:  seq,
		Status:          model.StatusWaiting,
		Priority:        priority,
		Active:          true,
		StatusNote:      req.Note,
		RegisteredBy:    actor,
		RegisteredAt:    now,
		StatusChangedAt: now,
		StatusChangedBy: actor,
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		if errors.Is(err, queueerrors.ErrDuplicateActiveEntry) {
			return nil, apperrors.DuplicateActiveEntry(req.PatientRef, date, err)
		}
		s.cfg.Log.Error("Failed to create queue entry",
			"patient_ref", req.PatientRef,
			"queue_number", entry.QueueNumber,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to register patient", err)
	}

	s.lifecycle.Record(ctx, entry, model.ActivityQueueRegistered,
		fmt.Sprintf("Registered as %s", entry.QueueNumber), actor)

	s.cfg.Log.Info("Patient registered in queue",
		"id", entry.ID,
		"queue_number", entry.QueueNumber,
		"patient_ref", entry.PatientRef,
		"priority", entry.Priority,
	)

	s.broadcastQueue(ctx, date)
	return entry, nil
}

// allocate retries contention with jittered exponential backoff. A lost lock
// is retried once; a second one, or any store failure, is returned at once.
func (s *queueService) allocate(ctx context.Context, key string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.allocate", trace.WithAttributes(attribute.String("sequence.key", key)))
	defer span.End()

	attempts := 0
	consistencyFailures := 0
	operation := func() (int64, error) {
		attempts++
		seq, err := s.allocator.Allocate(ctx, key)
		switch {
		case err == nil:
			return seq, nil
		case errors.Is(err, queueerrors.ErrContention):
			return 0, err
		case errors.Is(err, queueerrors.ErrAllocationConsistency):
			consistencyFailures++
			if consistencyFailures > 1 {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		default:
			return 0, backoff.Permanent(err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.AllocationBackoffInitial
	policy.MaxInterval = s.cfg.AllocationBackoffMax
	policy.RandomizationFactor = 0.5

	seq, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.cfg.AllocationMaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.cfg.Log.Debug("Sequence allocation retry", "key", key, "wait", wait, "error", err)
		}),
	)
	span.SetAttributes(attribute.Int("sequence.attempts", attempts))
	if err == nil {
		span.SetAttributes(attribute.Int64("sequence.value", seq))
		return seq, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case errors.Is(err, queueerrors.ErrContention):
		s.cfg.Log.Warn("Sequence allocation exhausted retries", "key", key, "attempts", attempts)
		return 0, apperrors.AllocatorBusy(err)
	case errors.Is(err, context.DeadlineExceeded):
		return 0, apperrors.Timeout("Queue number allocation timed out")
	default:
		s.cfg.Log.Error("Sequence allocation failed", "key", key, "attempts", attempts, "error", err)
		return 0, apperrors.Internal("Failed to allocate queue number", err)
	}
}

func (s *queueService) CallNext(ctx context.Context, date, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.CallNext")
	defer func() { finish(span, err) }()

	if err := s.validator.ValidateCallNext(&model.CallNextRequest{Date: date}); err != nil {
		return nil, validationError("Call next validation failed", err)
	}
	date = s.dateOrToday(date)
	span.SetAttributes(attribute.String("queue.date", date))

	for attempt := 0; attempt < callNextAttempts; attempt++ {
		next, err := s.entries.FindNextWaiting(ctx, date)
		if err != nil {
			if errors.Is(err, queueerrors.ErrNoWaitingEntry) {
				return nil, apperrors.QueueEmpty(date)
			}
			s.cfg.Log.Error("Failed to find next waiting entry", "date", date, "error", err)
			return nil, apperrors.Internal("Failed to call next patient", err)
		}

		called, err := s.lifecycle.Transition(ctx, next, model.StatusCalled, actor, "")
		if errors.Is(err, queueerrors.ErrInvalidTransition) || errors.Is(err, queueerrors.ErrStatusConflict) {
			s.cfg.Log.Debug("Queue head taken by another caller", "id", next.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, s.transitionError(next.ID, model.StatusCalled, err)
		}

		s.announce(ctx, called)
		return called, nil
	}

	return nil, apperrors.Conflict("Queue changed while calling the next patient, please retry")
}

func (s *queueService) Call(ctx context.Context, id, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.Call", trace.WithAttributes(attribute.String("queue.entry_id", id)))
	defer func() { finish(span, err) }()

	called, err := s.transition(ctx, id, model.StatusCalled, actor, "")
	if err != nil {
		return nil, err
	}
	s.announce(ctx, called)
	return called, nil
}

func (s *queueService) StartConsultation(ctx context.Context, id, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.StartConsultation", trace.WithAttributes(attribute.String("queue.entry_id", id)))
	defer func() { finish(span, err) }()

	entry, err = s.transition(ctx, id, model.StatusConsulting, actor, "")
	if err != nil {
		return nil, err
	}
	s.broadcastQueue(ctx, entry.Date)
	return entry, nil
}

func (s *queueService) Complete(ctx context.Context, id, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.Complete", trace.WithAttributes(attribute.String("queue.entry_id", id)))
	defer func() { finish(span, err) }()

	entry, err = s.transition(ctx, id, model.StatusDone, actor, "")
	if err != nil {
		return nil, err
	}
	s.broadcastQueue(ctx, entry.Date)
	return entry, nil
}

func (s *queueService) Cancel(ctx context.Context, id string, req *model.CancelRequest, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.Cancel", trace.WithAttributes(attribute.String("queue.entry_id", id)))
	defer func() { finish(span, err) }()

	req.Reason = sanitizer.NormalizeNote(req.Reason)
	if err := s.validator.ValidateCancel(req); err != nil {
		return nil, validationError("Cancellation validation failed", err)
	}

	entry, err = s.transition(ctx, id, model.StatusCancelled, actor, req.Reason)
	if err != nil {
		return nil, err
	}
	s.cfg.Log.Info("Queue entry cancelled",
		"id", entry.ID,
		"queue_number", entry.QueueNumber,
		"reason", req.Reason,
	)
	s.broadcastQueue(ctx, entry.Date)
	return entry, nil
}

func (s *queueService) UpdatePriority(ctx context.Context, id string, req *model.PriorityUpdate, actor string) (entry *model.QueueEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "QueueService.UpdatePriority", trace.WithAttributes(attribute.String("queue.entry_id", id)))
	defer func() { finish(span, err) }()

	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePriority(req); err != nil {
		return nil, validationError("Priority validation failed", err)
	}

	entry, err = s.entries.UpdatePriority(ctx, id, *req.Priority)
	if err != nil {
		switch {
		case errors.Is(err, queueerrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Queue entry", id)
		case errors.Is(err, queueerrors.ErrStatusConflict):
			return nil, apperrors.Conflict("Only waiting entries can be re-prioritised").WithDetails(map[string]any{"id": id})
		}
		s.cfg.Log.Error("Failed to update queue priority", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update priority", err)
	}

	s.lifecycle.Record(ctx, entry, model.ActivityPriorityChanged,
		fmt.Sprintf("Priority of %s set to %d", entry.QueueNumber, entry.Priority), actor)
	s.broadcastQueue(ctx, entry.Date)
	return entry, nil
}

func (s *queueService) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	return entry, nil
}

func (s *queueService) ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error) {
	date = s.dateOrToday(date)

	entries, err := s.entries.ListActive(ctx, date)
	if err != nil {
		s.cfg.Log.Error("Failed to list active queue entries", "date", date, "error", err)
		return nil, apperrors.Internal("Failed to list queue", err)
	}
	model.SortForDisplay(entries)
	return entries, nil
}

func (s *queueService) Stats(ctx context.Context, date string) (*model.QueueStats, error) {
	date = s.dateOrToday(date)

	counts, err := s.entries.CountByStatus(ctx, date)
	if err != nil {
		s.cfg.Log.Error("Failed to count queue entries", "date", date, "error", err)
		return nil, apperrors.Internal("Failed to compute queue statistics", err)
	}

	stats := &model.QueueStats{Date: date, ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}

	counter, err := s.sequences.Get(ctx, model.SequenceKey(date))
	switch {
	case err == nil:
		stats.CounterValue = counter.Value
	case errors.Is(err, queueerrors.ErrNotFound):
	default:
		s.cfg.Log.Error("Failed to read sequence counter", "date", date, "error", err)
		return nil, apperrors.Internal("Failed to compute queue statistics", err)
	}
	return stats, nil
}

func (s *queueService) transition(ctx context.Context, id string, target model.QueueStatus, actor, note string) (*model.QueueEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.lifecycle.Transition(ctx, entry, target, actor, note)
	if err != nil {
		return nil, s.transitionError(id, target, err)
	}

	s.cfg.Log.Info("Queue entry status changed",
		"id", updated.ID,
		"queue_number", updated.QueueNumber,
		"from", entry.Status,
		"to", updated.Status,
		"actor", actor,
	)
	return updated, nil
}

func (s *queueService) transitionError(id string, target model.QueueStatus, err error) error {
	var te *queueerrors.TransitionError
	if errors.As(err, &te) {
		return apperrors.InvalidTransition(id, te.From, te.To, err)
	}
	if errors.Is(err, queueerrors.ErrStatusConflict) {
		return apperrors.Conflict("Queue entry changed concurrently, please retry").
			WithDetails(map[string]any{"id": id, "to": string(target)})
	}
	if errors.Is(err, queueerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Queue entry", id)
	}
	s.cfg.Log.Error("Failed to change queue entry status",
		"id", id,
		"to", target,
		"error", err,
	)
	return apperrors.Internal("Failed to update queue entry", err)
}

func (s *queueService) lookupError(id string, err error) error {
	if errors.Is(err, queueerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Queue entry", id)
	}
	s.cfg.Log.Error("Failed to get queue entry by ID", "id", id, "error", err)
	return apperrors.Internal("Failed to retrieve queue entry", err)
}

// announce tells the displays who was called, then refreshes the board.
func (s *queueService) announce(ctx context.Context, entry *model.QueueEntry) {
	payload := model.PatientCalledPayload{
		Entry:   entry,
		Patient: s.patientSummary(ctx, entry.PatientRef),
	}
	s.hub.Broadcast(ctx, model.NewEvent(model.EventPatientCalled, payload, s.now()))
	s.broadcastQueue(ctx, entry.Date)
}

// patientSummary falls back to the bare reference when the directory has no
// record or cannot be reached; calling a patient never fails on it.
func (s *queueService) patientSummary(ctx context.Context, ref string) *model.PatientSummary {
	summary, err := s.directory.Summary(ctx, ref)
	if err != nil {
		if !errors.Is(err, patient.ErrNotFound) {
			s.cfg.Log.Warn("Failed to load patient summary", "patient_ref", ref, "error", err)
		}
		return &model.PatientSummary{Ref: ref}
	}
	return summary
}

func (s *queueService) broadcastQueue(ctx context.Context, date string) {
	entries, err := s.ListActive(ctx, date)
	if err != nil {
		s.cfg.Log.Warn("Skipping queue update broadcast", "date", date, "error", err)
		return
	}
	s.hub.Broadcast(ctx, model.NewEvent(model.EventQueueUpdate, entries, s.now()))
}

func (s *queueService) dateOrToday(date string) string {
	if date != "" {
		return date
	}
	return locale.DateOf(s.now(), s.cfg.ClinicLocation())
}

func checkID(id string) error {
	if id == "" {
		return apperrors.InvalidInput("Queue entry ID cannot be empty")
	}
	if err := uuid.Validate(id); err != nil {
		return apperrors.Wrap(fmt.Errorf("%w: %s", queueerrors.ErrInvalidID, id),
			apperrors.CodeInvalidInput, "Invalid queue entry ID format", http.StatusBadRequest)
	}
	return nil
}

func validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
