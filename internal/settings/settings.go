// Package settings manages the per-user global notification policy.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/store"
)

// ErrInvalid marks a malformed settings payload, rejected before any mutation.
var ErrInvalid = errors.New("invalid settings")

var timeFormatRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Controller reads and updates NotificationSettings. Disabling notifications
// suppresses delivery without touching jobs; re-enabling rebuilds the job set
// so nothing is silently lost to clock drift during the disabled period.
type Controller struct {
	kv     *store.KV
	sched  *scheduler.Scheduler
	logger *slog.Logger
	now    func() time.Time
}

func NewController(kv *store.KV, sched *scheduler.Scheduler, logger *slog.Logger) *Controller {
	return &Controller{kv: kv, sched: sched, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the user's settings, or the defaults when none were ever saved.
func (c *Controller) Get(userID string) (model.NotificationSettings, error) {
	var s model.NotificationSettings
	found, err := c.kv.Get(store.NSSettings, userID, &s)
	if err != nil {
		return model.NotificationSettings{}, err
	}
	if !found {
		return model.DefaultNotificationSettings(), nil
	}
	return s, nil
}

// Update validates and persists new settings. On the disabled→enabled
// transition it triggers a full reschedule; offsets whose fire time has
// passed in the meantime collapse to the next still-future offset.
func (c *Controller) Update(ctx context.Context, userID string, next model.NotificationSettings) (model.NotificationSettings, error) {
	if err := validate(next); err != nil {
		return model.NotificationSettings{}, err
	}

	var saved model.NotificationSettings
	err := c.sched.Queue().Do(userID, func() error {
		prev, err := c.Get(userID)
		if err != nil {
			return err
		}

		next.UpdatedAt = c.now().UTC()
		if err := c.kv.Set(store.NSSettings, userID, next); err != nil {
			return err
		}
		saved = next

		if !prev.Enabled && next.Enabled {
			c.logger.Info("notifications re-enabled, rebuilding jobs", "user", userID)
			if err := c.sched.RescheduleAll(ctx, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.NotificationSettings{}, err
	}
	return saved, nil
}

func validate(s model.NotificationSettings) error {
	if s.PreferredTime != "" && !timeFormatRegexp.MatchString(s.PreferredTime) {
		return fmt.Errorf("%w: preferred_time %q is not HH:MM", ErrInvalid, s.PreferredTime)
	}
	return nil
}
