// Package stats computes read-only rollups over the notification history.
package stats

import (
	"time"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/store"
)

// Aggregator derives delivery/open statistics from the history log. Nothing
// is stored; every call recomputes from the current log contents.
type Aggregator struct {
	history *store.HistoryLog
	now     func() time.Time
}

func NewAggregator(history *store.HistoryLog) *Aggregator {
	return &Aggregator{history: history, now: time.Now}
}

// SetClock overrides the time source.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// WindowStats rolls up Delivered and Opened counts over the last given number
// of days. The open rate is zero when nothing was delivered.
func (a *Aggregator) WindowStats(userID string, days int) (model.StatsWindow, error) {
	cutoff := a.now().UTC().AddDate(0, 0, -days)
	entries, err := a.history.Since(userID, cutoff)
	if err != nil {
		return model.StatsWindow{}, err
	}

	w := model.StatsWindow{
		Days:       days,
		PerProgram: make(map[string]model.ProgramStats),
	}
	for _, e := range entries {
		switch e.Action {
		case model.ActionDelivered:
			w.TotalDelivered++
		case model.ActionOpened:
			w.TotalOpened++
		default:
			continue
		}
		if e.ProgramID == "" {
			continue
		}
		p := w.PerProgram[e.ProgramID]
		if e.Action == model.ActionDelivered {
			p.Delivered++
		} else {
			p.Opened++
		}
		w.PerProgram[e.ProgramID] = p
	}

	if w.TotalDelivered > 0 {
		w.OpenRate = float64(w.TotalOpened) / float64(w.TotalDelivered)
	}
	return w, nil
}
