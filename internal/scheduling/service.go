package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lessonhub/internal/org"
	"lessonhub/internal/queue"
	"lessonhub/internal/recurrence"
)

// Store is the persistence boundary the lifecycle manager drives. The
// Checked methods perform their capacity and self-conflict reads
// atomically with the write.
type Store interface {
	CheckAvailability(ctx context.Context, orgID, studentID uuid.UUID, start, end time.Time, maxCount int) (Availability, error)
	CreateChecked(ctx context.Context, sched *Schedule, maxCount int) (Availability, error)
	CreateSeriesChecked(ctx context.Context, series []*Schedule, maxCount int) (Availability, int, error)
	UpdateChecked(ctx context.Context, sched *Schedule, newStart, newEnd time.Time, maxCount int, markException bool) (Availability, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStudent(ctx context.Context, studentID uuid.UUID, from, to time.Time) ([]*Schedule, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*Schedule, error)
}

// Directory resolves tenancy data: organizations, members, programs and
// per-org settings.
type Directory interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*org.Organization, error)
	GetMember(ctx context.Context, id uuid.UUID) (*org.Member, error)
	GetProgram(ctx context.Context, id uuid.UUID) (*org.Program, error)
	GetSettings(ctx context.Context, orgID uuid.UUID) (org.Settings, error)
}

// Service orchestrates the create/cancel flow: authorization scoping,
// time-window policy, the atomic conflict/capacity check, persistence and
// event publishing. Authorization is enforced here explicitly; the store
// is not trusted for tenant isolation.
type Service struct {
	store  Store
	dir    Directory
	events queue.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the lifecycle manager. events may be nil when no
// notification queue is wired.
func NewService(store Store, dir Directory, events queue.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		dir:    dir,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// CreateInput describes one booking request. StudentID may differ from
// ActorID only for admin actors.
type CreateInput struct {
	ActorID       uuid.UUID
	StudentID     uuid.UUID
	Date          string
	StartTime     string
	DurationHours int
	ProgramID     *uuid.UUID
}

// Create validates policy, runs the checker atomically with the insert,
// and returns the persisted schedule.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Schedule, error) {
	actor, target, err := s.resolveActorAndStudent(ctx, in.ActorID, in.StudentID)
	if err != nil {
		return nil, err
	}

	o, settings, err := s.tenant(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	programID, err := s.resolveProgram(ctx, o.ID, in.ProgramID)
	if err != nil {
		return nil, err
	}

	policy := PolicyFor(o.Location(), settings)
	now := s.now()

	start, end, err := policy.SlotTimes(in.Date, in.StartTime, policy.ResolveDuration(in.DurationHours))
	if err != nil {
		return nil, &PolicyViolationError{Reason: err.Error()}
	}
	if actor.Role == org.RoleAdmin {
		// Admins are not bound by the student booking window, but past
		// dates stay off limits.
		if !policy.CanMutate(start, now) {
			return nil, &PolicyViolationError{Reason: "cannot create a schedule in the past"}
		}
	} else if err := s.checkBookable(policy, start, now); err != nil {
		return nil, err
	}

	sched := &Schedule{
		OrgID:     o.ID,
		ProgramID: programID,
		StudentID: target.ID,
		StartsAt:  start,
		EndsAt:    end,
		CreatedBy: &actor.ID,
	}

	avail, err := s.store.CreateChecked(ctx, sched, settings.MaxConcurrentStudents)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	if !avail.Allowed {
		return nil, rejection(avail)
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", sched.ID.String()),
		zap.String("org_id", o.ID.String()),
		zap.String("student_id", target.ID.String()),
		zap.Time("starts_at", start),
		zap.Int("slot_occupancy", avail.CurrentCount+1),
	)
	s.publish(ctx, EventCreated, sched)
	return sched, nil
}

// RecurringInput describes an admin-defined weekly series.
type RecurringInput struct {
	ActorID       uuid.UUID
	StudentID     uuid.UUID
	StartDate     string
	StartTime     string
	DurationHours int
	UntilDate     string
	ProgramID     *uuid.UUID
}

// CreateRecurring expands a weekly rule into concrete occurrences and
// persists the whole series atomically: one row per occurrence, children
// referencing the first row, which carries the serialized rule. Any
// occurrence failing the checker aborts the entire series.
func (s *Service) CreateRecurring(ctx context.Context, in RecurringInput) ([]*Schedule, error) {
	actor, target, err := s.resolveActorAndStudent(ctx, in.ActorID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != org.RoleAdmin {
		return nil, ErrForbidden
	}

	o, settings, err := s.tenant(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	programID, err := s.resolveProgram(ctx, o.ID, in.ProgramID)
	if err != nil {
		return nil, err
	}

	policy := PolicyFor(o.Location(), settings)
	now := s.now()

	duration := policy.ResolveDuration(in.DurationHours)
	start, _, err := policy.SlotTimes(in.StartDate, in.StartTime, duration)
	if err != nil {
		return nil, &PolicyViolationError{Reason: err.Error()}
	}
	until, _, err := policy.SlotTimes(in.UntilDate, in.StartTime, duration)
	if err != nil {
		return nil, &PolicyViolationError{Reason: err.Error()}
	}
	if !policy.CanMutate(start, now) {
		return nil, &PolicyViolationError{Reason: "series cannot start in the past"}
	}

	rule := recurrence.Rule{Freq: recurrence.FreqWeekly, DTStart: start, Until: until}
	occurrences := rule.Expand()
	if len(occurrences) == 0 {
		return nil, &PolicyViolationError{Reason: "recurrence yields no occurrences: until precedes the start date"}
	}

	ruleStr := rule.String()
	parentID := uuid.New()
	series := make([]*Schedule, 0, len(occurrences))
	for i, occ := range occurrences {
		sched := &Schedule{
			OrgID:     o.ID,
			ProgramID: programID,
			StudentID: target.ID,
			StartsAt:  occ,
			EndsAt:    occ.Add(duration),
			CreatedBy: &actor.ID,
		}
		if i == 0 {
			sched.ID = parentID
			sched.RecurrenceRule = &ruleStr
		} else {
			pid := parentID
			sched.ParentID = &pid
		}
		series = append(series, sched)
	}

	avail, failed, err := s.store.CreateSeriesChecked(ctx, series, settings.MaxConcurrentStudents)
	if err != nil {
		return nil, fmt.Errorf("create recurring schedule: %w", err)
	}
	if !avail.Allowed {
		s.logger.Warn("recurring series rejected",
			zap.String("org_id", o.ID.String()),
			zap.Time("occurrence", series[failed].StartsAt),
			zap.Int("current_count", avail.CurrentCount),
			zap.Int("max_count", avail.MaxCount),
		)
		return nil, rejection(avail)
	}

	s.logger.Info("recurring series created",
		zap.String("parent_id", parentID.String()),
		zap.String("org_id", o.ID.String()),
		zap.String("student_id", target.ID.String()),
		zap.Int("occurrences", len(series)),
	)
	for _, sched := range series {
		s.publish(ctx, EventCreated, sched)
	}
	return series, nil
}

// Cancel deletes a schedule. Students may cancel only their own rows and
// only before the start date; admins may act on any row in their org but
// past rows stay immutable for them too.
func (s *Service) Cancel(ctx context.Context, scheduleID, actorID uuid.UUID) error {
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return err
	}

	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if sched == nil {
		return ErrNotFound
	}
	if sched.OrgID != actor.OrgID {
		return ErrForbidden
	}

	o, settings, err := s.tenant(ctx, actor.OrgID)
	if err != nil {
		return err
	}
	policy := PolicyFor(o.Location(), settings)
	now := s.now()

	if actor.Role == org.RoleAdmin {
		if !policy.CanMutate(sched.StartsAt, now) {
			return &PolicyViolationError{Reason: "past schedules cannot be deleted"}
		}
	} else {
		if sched.StudentID != actor.ID {
			return ErrForbidden
		}
		if !policy.CanCancel(sched.StartsAt, now) {
			return &PolicyViolationError{Reason: "same-day cancellation is not allowed"}
		}
	}

	if err := s.store.Delete(ctx, scheduleID); err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}

	s.logger.Info("schedule cancelled",
		zap.String("schedule_id", scheduleID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("role", actor.Role),
	)
	s.publish(ctx, EventCancelled, sched)
	return nil
}

// MoveInput moves one schedule to a new slot.
type MoveInput struct {
	ActorID       uuid.UUID
	ScheduleID    uuid.UUID
	Date          string
	StartTime     string
	DurationHours int
}

// Move relocates a schedule to a new interval. Admin only. Moving a
// member of a recurring series flags the row as an exception without
// touching the stored rule.
func (s *Service) Move(ctx context.Context, in MoveInput) (*Schedule, error) {
	actor, err := s.member(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != org.RoleAdmin {
		return nil, ErrForbidden
	}

	sched, err := s.store.GetByID(ctx, in.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if sched == nil {
		return nil, ErrNotFound
	}
	if sched.OrgID != actor.OrgID {
		return nil, ErrForbidden
	}

	o, settings, err := s.tenant(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	policy := PolicyFor(o.Location(), settings)
	now := s.now()

	if !policy.CanMutate(sched.StartsAt, now) {
		return nil, &PolicyViolationError{Reason: "past schedules cannot be changed"}
	}
	start, end, err := policy.SlotTimes(in.Date, in.StartTime, policy.ResolveDuration(in.DurationHours))
	if err != nil {
		return nil, &PolicyViolationError{Reason: err.Error()}
	}
	if !policy.CanMutate(start, now) {
		return nil, &PolicyViolationError{Reason: "cannot move a schedule into the past"}
	}

	inSeries := sched.ParentID != nil || sched.RecurrenceRule != nil
	avail, err := s.store.UpdateChecked(ctx, sched, start, end, settings.MaxConcurrentStudents, inSeries)
	if err != nil {
		return nil, fmt.Errorf("move schedule: %w", err)
	}
	if !avail.Allowed {
		return nil, rejection(avail)
	}

	s.logger.Info("schedule moved",
		zap.String("schedule_id", sched.ID.String()),
		zap.Time("starts_at", start),
		zap.Bool("exception", sched.IsException),
	)
	return sched, nil
}

// Preview runs the conflict/capacity check without reserving anything.
func (s *Service) Preview(ctx context.Context, actorID uuid.UUID, date, startTime string, durationHours int) (Availability, error) {
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return Availability{}, err
	}
	o, settings, err := s.tenant(ctx, actor.OrgID)
	if err != nil {
		return Availability{}, err
	}
	policy := PolicyFor(o.Location(), settings)

	start, end, err := policy.SlotTimes(date, startTime, policy.ResolveDuration(durationHours))
	if err != nil {
		return Availability{}, &PolicyViolationError{Reason: err.Error()}
	}
	avail, err := s.store.CheckAvailability(ctx, o.ID, actor.ID, start, end, settings.MaxConcurrentStudents)
	if err != nil {
		return Availability{}, fmt.Errorf("check availability: %w", err)
	}
	return avail, nil
}

// List returns the schedules visible to the actor in [from,to): their own
// rows for students, the whole organization for admins.
func (s *Service) List(ctx context.Context, actorID uuid.UUID, from, to time.Time) ([]*Schedule, error) {
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == org.RoleAdmin {
		return s.store.ListByOrg(ctx, actor.OrgID, from, to)
	}
	return s.store.ListByStudent(ctx, actor.ID, from, to)
}

// SeriesRemaining returns the occurrence dates of a recurring schedule
// that are still ahead of today, empty when the series has elapsed.
func (s *Service) SeriesRemaining(ctx context.Context, scheduleID, actorID uuid.UUID) ([]time.Time, error) {
	actor, err := s.member(ctx, actorID)
	if err != nil {
		return nil, err
	}
	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if sched == nil {
		return nil, ErrNotFound
	}
	if sched.OrgID != actor.OrgID {
		return nil, ErrForbidden
	}
	if actor.Role != org.RoleAdmin && sched.StudentID != actor.ID {
		return nil, ErrForbidden
	}
	if sched.RecurrenceRule == nil {
		return nil, &PolicyViolationError{Reason: "schedule is not recurring"}
	}

	o, err := s.dir.GetOrganization(ctx, actor.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if o == nil {
		return nil, ErrNotFound
	}
	remaining, err := recurrence.Remaining(*sched.RecurrenceRule, s.now().In(o.Location()))
	if err != nil {
		return nil, fmt.Errorf("expand recurrence: %w", err)
	}
	return remaining, nil
}

func (s *Service) member(ctx context.Context, id uuid.UUID) (*org.Member, error) {
	m, err := s.dir.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if m == nil {
		return nil, ErrForbidden
	}
	return m, nil
}

// resolveActorAndStudent scopes a booking: students book for themselves,
// admins for any normal student of their own organization.
func (s *Service) resolveActorAndStudent(ctx context.Context, actorID, studentID uuid.UUID) (actor, target *org.Member, err error) {
	actor, err = s.member(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}

	target = actor
	if studentID != uuid.Nil && studentID != actor.ID {
		if actor.Role != org.RoleAdmin {
			return nil, nil, ErrForbidden
		}
		target, err = s.dir.GetMember(ctx, studentID)
		if err != nil {
			return nil, nil, fmt.Errorf("load student: %w", err)
		}
		if target == nil {
			return nil, nil, ErrNotFound
		}
		if target.OrgID != actor.OrgID {
			return nil, nil, ErrForbidden
		}
	}

	if target.Role != org.RoleStudent {
		return nil, nil, &PolicyViolationError{Reason: "schedules can only be booked for students"}
	}
	if !target.CanBook() {
		return nil, nil, ErrForbidden
	}
	return actor, target, nil
}

func (s *Service) tenant(ctx context.Context, orgID uuid.UUID) (*org.Organization, org.Settings, error) {
	o, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, org.Settings{}, fmt.Errorf("load organization: %w", err)
	}
	if o == nil {
		return nil, org.Settings{}, ErrNotFound
	}
	settings, err := s.dir.GetSettings(ctx, orgID)
	if err != nil {
		return nil, org.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return o, settings, nil
}

func (s *Service) resolveProgram(ctx context.Context, orgID uuid.UUID, programID *uuid.UUID) (*uuid.UUID, error) {
	if programID == nil {
		return nil, nil
	}
	p, err := s.dir.GetProgram(ctx, *programID)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if p == nil || p.OrgID != orgID {
		return nil, ErrNotFound
	}
	if !p.Active {
		return nil, &PolicyViolationError{Reason: "program is not accepting bookings"}
	}
	return programID, nil
}

func (s *Service) checkBookable(policy Policy, start, now time.Time) error {
	rangeStart, _ := policy.AllowedBookingRange(now)
	if start.Before(rangeStart) {
		return &PolicyViolationError{Reason: "cannot book a date in the past"}
	}
	if !policy.CanCreate(start, now) {
		return &PolicyViolationError{Reason: "date is outside the allowed booking window"}
	}
	return nil
}

// rejection maps a checker verdict to the error taxonomy. Self-conflict
// takes precedence so the student sees the precise cause.
func rejection(avail Availability) error {
	if avail.HasConflict {
		return &StudentConflictError{}
	}
	return &CapacityExceededError{CurrentCount: avail.CurrentCount, MaxCount: avail.MaxCount}
}

func (s *Service) publish(ctx context.Context, eventType string, sched *Schedule) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(Event{
		ScheduleID: sched.ID,
		OrgID:      sched.OrgID,
		StudentID:  sched.StudentID,
		StartsAt:   sched.StartsAt,
		EndsAt:     sched.EndsAt,
	})
	if err != nil {
		s.logger.Error("encode schedule event", zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, queue.Message{Type: eventType, Body: body}); err != nil {
		s.logger.Error("publish schedule event", zap.String("type", eventType), zap.Error(err))
	}
}
