package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicflow/internal/activity"
	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/logger"
	"clinicflow/pkg/model"
)

var transitions = map[model.QueueStatus][]model.QueueStatus{
	model.StatusWaiting:    {model.StatusCalled, model.StatusCancelled},
	model.StatusCalled:     {model.StatusConsulting, model.StatusCancelled},
	model.StatusConsulting: {model.StatusDone},
}

var activityFor = map[model.QueueStatus]string{
	model.StatusCalled:     model.ActivityQueueCalled,
	model.StatusConsulting: model.ActivityConsultationStarted,
	model.StatusDone:       model.ActivityConsultationCompleted,
	model.StatusCancelled:  model.ActivityQueueCancelled,
}

func CanTransition(from, to model.QueueStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Validate returns a *TransitionError when from -> to is not an edge of the
// visit state machine.
func Validate(from, to model.QueueStatus) error {
	if !CanTransition(from, to) {
		return &queueerrors.TransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// Plan builds the field changes for moving entry to target.
func Plan(entry *model.QueueEntry, target model.QueueStatus, actor, note string, now time.Time) (model.StatusUpdate, error) {
	if err := Validate(entry.Status, target); err != nil {
		return model.StatusUpdate{}, err
	}

	update := model.StatusUpdate{
		Status:    target,
		ChangedAt: now,
		ChangedBy: actor,
	}
	switch target {
	case model.StatusCalled:
		update.CalledAt = &now
	case model.StatusConsulting:
		update.ConsultingStartedAt = &now
	case model.StatusDone:
		update.CompletedAt = &now
	case model.StatusCancelled:
		update.StatusNote = note
	}
	return update, nil
}

// Lifecycle applies validated transitions with status-guarded writes and
// records each one in the patient's activity log.
type Lifecycle struct {
	repo       repository.QueueEntryRepository
	activities activity.Log
	log        *logger.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

func New(repo repository.QueueEntryRepository, activities activity.Log, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		repo:       repo,
		activities: activities,
		log:        log,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (l *Lifecycle) Transition(ctx context.Context, entry *model.QueueEntry, target model.QueueStatus, actor, note string) (*model.QueueEntry, error) {
	update, err := Plan(entry, target, actor, note, l.now())
	if err != nil {
		return nil, err
	}

	updated, err := l.repo.UpdateStatus(ctx, entry.ID, entry.Status, update)
	if err != nil {
		if errors.Is(err, queueerrors.ErrStatusConflict) {
			return nil, l.conflict(ctx, entry, target)
		}
		return nil, err
	}

	l.Record(ctx, updated, activityFor[target], describe(updated, target, note), actor)
	return updated, nil
}

// conflict explains a lost conditional update. If the entry can still move
// to target from where it is now, the caller lost a race and may retry;
// otherwise the move is no longer valid.
func (l *Lifecycle) conflict(ctx context.Context, entry *model.QueueEntry, target model.QueueStatus) error {
	current, err := l.repo.FindByID(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to reload queue entry: %w", err)
	}
	if CanTransition(current.Status, target) {
		return fmt.Errorf("%w: %s moved from %s to %s", queueerrors.ErrStatusConflict, entry.ID, entry.Status, current.Status)
	}
	return &queueerrors.TransitionError{From: string(current.Status), To: string(target)}
}

// Record appends an activity in the background. Failures are logged only.
func (l *Lifecycle) Record(ctx context.Context, entry *model.QueueEntry, action, description, actor string) {
	a := model.Activity{
		PatientRef:  entry.PatientRef,
		EntryID:     entry.ID,
		Action:      action,
		Description: description,
		ActorRef:    actor,
		CreatedAt:   l.now(),
	}

	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		if err := l.activities.Append(context.WithoutCancel(ctx), a); err != nil {
			l.log.Warn("failed to append patient activity",
				"patient_ref", a.PatientRef,
				"action", a.Action,
				"error", err,
			)
		}
	}()
}

// Wait blocks until in-flight activity writes finish.
func (l *Lifecycle) Wait() {
	l.pending.Wait()
}

func describe(entry *model.QueueEntry, target model.QueueStatus, note string) string {
	switch target {
	case model.StatusCalled:
		return fmt.Sprintf("Queue %s called", entry.QueueNumber)
	case model.StatusConsulting:
		return fmt.Sprintf("Consultation started for %s", entry.QueueNumber)
	case model.StatusDone:
		return fmt.Sprintf("Consultation completed for %s", entry.QueueNumber)
	case model.StatusCancelled:
		if note != "" {
			return fmt.Sprintf("Queue %s cancelled: %s", entry.QueueNumber, note)
		}
		return fmt.Sprintf("Queue %s cancelled", entry.QueueNumber)
	}
	return fmt.Sprintf("Queue %s moved to %s", entry.QueueNumber, target)
}
