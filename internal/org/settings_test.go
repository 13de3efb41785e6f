package org

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	for _, key := range []string{
		SettingMaxConcurrentStudents,
		SettingScheduleDurationHours,
		SettingBookingIntervalMinutes,
		SettingBookingWindowDays,
		SettingNotificationsEnabled,
	} {
		assert.NoError(t, ValidateKey(key))
	}

	err := ValidateKey("grace_period_hours")
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestUpdateSettingRejectsBadInputBeforeStore(t *testing.T) {
	// Both validation failures must surface before any query runs; a repo
	// without a database proves the short-circuit.
	repo := NewRepository(nil)
	orgID := uuid.New()

	err := repo.UpdateSetting(context.Background(), orgID, "grace_period_hours", json.RawMessage(`5`))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	err = repo.UpdateSetting(context.Background(), orgID, SettingMaxConcurrentStudents, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidSetting)
}
