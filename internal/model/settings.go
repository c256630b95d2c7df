package model

import "time"

// NotificationSettings is the per-user global notification policy.
// PreferredTime is an advisory delivery-window hint (HH:MM); it never affects
// job computation.
type NotificationSettings struct {
	Enabled          bool      `json:"enabled"`
	PreferredTime    string    `json:"preferred_time"`
	SoundEnabled     bool      `json:"sound_enabled"`
	VibrationEnabled bool      `json:"vibration_enabled"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultNotificationSettings returns the settings applied before a user has
// ever saved any.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:          true,
		PreferredTime:    "08:00",
		SoundEnabled:     true,
		VibrationEnabled: true,
	}
}
