package notify

import (
	"context"

	"go.uber.org/zap"

	"lessonhub/internal/scheduling"
)

// Notifier dispatches booking notifications. Actual delivery channels
// (email, AlimTalk) are external; implementations adapt this seam.
type Notifier interface {
	ScheduleCreated(ctx context.Context, ev scheduling.Event) error
	ScheduleCancelled(ctx context.Context, ev scheduling.Event) error
}

// Console writes notifications to the log. Used in development and as
// the fallback when no delivery channel is configured.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger}
}

func (c *Console) ScheduleCreated(_ context.Context, ev scheduling.Event) error {
	c.logger.Info("notify: schedule created",
		zap.String("schedule_id", ev.ScheduleID.String()),
		zap.String("org_id", ev.OrgID.String()),
		zap.String("student_id", ev.StudentID.String()),
		zap.Time("starts_at", ev.StartsAt),
	)
	return nil
}

func (c *Console) ScheduleCancelled(_ context.Context, ev scheduling.Event) error {
	c.logger.Info("notify: schedule cancelled",
		zap.String("schedule_id", ev.ScheduleID.String()),
		zap.String("org_id", ev.OrgID.String()),
		zap.String("student_id", ev.StudentID.String()),
		zap.Time("starts_at", ev.StartsAt),
	)
	return nil
}
