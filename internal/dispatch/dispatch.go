// Package dispatch fires due reminder jobs and routes them to whichever
// channel can reach the user: the in-app surface when the app is
// foregrounded, web push otherwise. Exactly one channel receives each job.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gochang/agrialimi/internal/inapp"
	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/phrasing"
	"github.com/gochang/agrialimi/internal/push"
	"github.com/gochang/agrialimi/internal/scheduler"
	"github.com/gochang/agrialimi/internal/settings"
	"github.com/gochang/agrialimi/internal/store"
)

// UserSource lists the users the sweep covers. Implemented by interest.Registry.
type UserSource interface {
	Users() ([]string, error)
}

// PushChannel sends a payload to one device subscription. Implemented by
// push.Service.
type PushChannel interface {
	Send(sub *model.PushSubscription, payload push.Payload) error
}

// InAppSurface presents a notice to a foregrounded user. Implemented by
// inapp.Hub.
type InAppSurface interface {
	Reachable(userID string) bool
	Present(userID string, n inapp.Notice) bool
}

// ProgramSource resolves program names for notification copy.
type ProgramSource interface {
	GetByID(ctx context.Context, id string) (model.Program, error)
}

// Dispatcher performs due-job sweeps. It is agnostic to what triggers a
// sweep; see Runner for the ticker/cron triggers.
type Dispatcher struct {
	sched    *scheduler.Scheduler
	settings *settings.Controller
	users    UserSource
	subs     *store.SubscriptionStore
	history  *store.HistoryLog
	programs ProgramSource
	pushCh   PushChannel
	surface  InAppSurface
	logger   *slog.Logger
	now      func() time.Time
}

func New(
	sched *scheduler.Scheduler,
	settingsCtl *settings.Controller,
	users UserSource,
	subs *store.SubscriptionStore,
	history *store.HistoryLog,
	programs ProgramSource,
	pushCh PushChannel,
	surface InAppSurface,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		sched:    sched,
		settings: settingsCtl,
		users:    users,
		subs:     subs,
		history:  history,
		programs: programs,
		pushCh:   pushCh,
		surface:  surface,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Sweep processes every user's due jobs once. A failure for one user never
// blocks the others.
func (d *Dispatcher) Sweep(ctx context.Context) {
	userIDs, err := d.users.Users()
	if err != nil {
		d.logger.Error("sweep: list users", "error", err)
		return
	}
	for _, userID := range userIDs {
		if err := d.sched.Queue().Do(userID, func() error {
			return d.sweepUser(ctx, userID)
		}); err != nil {
			d.logger.Error("sweep user", "user", userID, "error", err)
		}
	}
}

// sweepUser runs inside the user's queue task.
func (d *Dispatcher) sweepUser(ctx context.Context, userID string) error {
	cfg, err := d.settings.Get(userID)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		// Suppressed, not cancelled: jobs stay Scheduled and fire after
		// re-enabling without any rescheduling.
		d.logger.Debug("notifications disabled, skipping sweep", "user", userID)
		return nil
	}

	due, err := d.sched.DueJobs(userID, d.now())
	if err != nil {
		return err
	}

	for _, job := range due {
		d.fire(ctx, job, cfg)
	}
	return nil
}

// fire marks one job Fired and delivers it. The Fired transition is terminal
// and happens before the send: a failed send is logged and never retried,
// preferring a silent miss over duplicate reminders.
func (d *Dispatcher) fire(ctx context.Context, job model.ReminderJob, cfg model.NotificationSettings) {
	if err := d.sched.MarkFired(job); err != nil {
		// Couldn't record the transition; leave the job Scheduled so the
		// next sweep picks it up.
		d.logger.Error("mark fired", "user", job.UserID, "program", job.ProgramID, "error", err)
		return
	}

	name := job.ProgramID
	if program, err := d.programs.GetByID(ctx, job.ProgramID); err == nil {
		name = program.Name
	}
	text := phrasing.RenderReminderText(name, job.OffsetDays)

	if err := d.history.Append(job.UserID, model.HistoryEntry{
		ProgramID:  job.ProgramID,
		Action:     model.ActionDelivered,
		Title:      text.Title,
		OccurredAt: d.now().UTC(),
	}); err != nil {
		d.logger.Error("append delivered history", "user", job.UserID, "error", err)
	}

	if d.surface.Reachable(job.UserID) {
		if !d.surface.Present(job.UserID, inapp.Notice{
			Title:     text.Title,
			Body:      text.Body,
			ProgramID: job.ProgramID,
			Sound:     cfg.SoundEnabled,
			Vibration: cfg.VibrationEnabled,
		}) {
			d.logger.Warn("in-app present failed", "user", job.UserID, "program", job.ProgramID)
		}
		return
	}

	d.sendPush(job, text, cfg)
}

func (d *Dispatcher) sendPush(job model.ReminderJob, text phrasing.Text, cfg model.NotificationSettings) {
	subs, err := d.subs.ListByUser(job.UserID)
	if err != nil {
		d.logger.Error("list subscriptions", "user", job.UserID, "error", err)
		return
	}
	if len(subs) == 0 {
		d.logger.Warn("no reachable channel", "user", job.UserID, "program", job.ProgramID)
		return
	}

	payload := push.Payload{
		Title:     text.Title,
		Body:      text.Body,
		ProgramID: job.ProgramID,
		Sound:     cfg.SoundEnabled,
		Vibration: cfg.VibrationEnabled,
	}
	for _, sub := range subs {
		if err := d.pushCh.Send(&sub, payload); err != nil {
			if errors.Is(err, push.ErrExpired) {
				if err := d.subs.DeleteByEndpoint(job.UserID, sub.Endpoint); err != nil {
					d.logger.Warn("prune expired subscription", "user", job.UserID, "error", err)
				}
				continue
			}
			d.logger.Warn("push send failed", "user", job.UserID, "program", job.ProgramID, "error", err)
		}
	}
}

// RecordOpened appends an Opened history entry for an acknowledged reminder.
// Called from the inbound-open path (push tap or in-app confirm).
func (d *Dispatcher) RecordOpened(userID, programID string) error {
	return d.history.Append(userID, model.HistoryEntry{
		ProgramID:  programID,
		Action:     model.ActionOpened,
		OccurredAt: d.now().UTC(),
	})
}
