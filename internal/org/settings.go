package org

import (
	"errors"
	"fmt"
)

// ErrInvalidSetting marks a rejected setting update: unknown key or a
// value that is not valid JSON. Callers treat it as client input error,
// not a store failure.
var ErrInvalidSetting = errors.New("invalid setting")

// Recognized per-organization setting keys. Values are stored as JSON.
const (
	SettingMaxConcurrentStudents  = "max_concurrent_students"
	SettingScheduleDurationHours  = "schedule_duration_hours"
	SettingBookingIntervalMinutes = "booking_interval_minutes"
	SettingBookingWindowDays      = "booking_window_days"
	SettingNotificationsEnabled   = "notifications_enabled"
)

// Settings is the resolved per-tenant configuration the booking engine
// reads. Missing rows resolve to the documented defaults.
type Settings struct {
	MaxConcurrentStudents  int  `json:"max_concurrent_students"`
	ScheduleDurationHours  int  `json:"schedule_duration_hours"`
	BookingIntervalMinutes int  `json:"booking_interval_minutes"`
	BookingWindowDays      int  `json:"booking_window_days"`
	NotificationsEnabled   bool `json:"notifications_enabled"`
}

// DefaultSettings returns the documented defaults applied lazily on first
// organization setup.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentStudents:  5,
		ScheduleDurationHours:  3,
		BookingIntervalMinutes: 30,
		BookingWindowDays:      30,
		NotificationsEnabled:   true,
	}
}

// ValidateKey rejects setting names outside the recognized set.
func ValidateKey(key string) error {
	switch key {
	case SettingMaxConcurrentStudents,
		SettingScheduleDurationHours,
		SettingBookingIntervalMinutes,
		SettingBookingWindowDays,
		SettingNotificationsEnabled:
		return nil
	}
	return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
}
