package model

import "time"

// DefaultReminderOffsets are the days-before-deadline offsets used when a
// program does not carry its own set (D-7, D-3, D-1, D-0).
var DefaultReminderOffsets = []int{7, 3, 1, 0}

// ApplicationWindow is the calendar-date span during which a program accepts
// applications. Dates carry no meaningful time-of-day.
type ApplicationWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Program is a subsidy program from the external catalog. Immutable once fetched.
type Program struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Window          ApplicationWindow `json:"window"`
	ReminderOffsets []int             `json:"reminder_offsets,omitempty"`
}

// Offsets returns the program's reminder offsets, falling back to the defaults.
func (p Program) Offsets() []int {
	if len(p.ReminderOffsets) == 0 {
		return DefaultReminderOffsets
	}
	return p.ReminderOffsets
}
