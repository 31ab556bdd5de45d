package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/pacer/internal/domain"
)

// LoadSettings returns the saved settings for a user.
// Returns a NOT_FOUND error if the user never saved any.
func (s *Store) LoadSettings(ctx context.Context, userID string) (domain.UserSettings, error) {
	var (
		settings   domain.UserSettings
		intervalMS int64
		units      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, due_every_n, reminder_interval_ms, warning_threshold, default_negative_volume, units
		FROM settings
		WHERE user_id = ?
	`, userID).Scan(
		&settings.UserID,
		&settings.DueEveryN,
		&intervalMS,
		&settings.WarningThreshold,
		&settings.DefaultNegativeVolume,
		&units,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserSettings{}, &domain.Error{Code: domain.CodeNotFound, Op: "settings", Message: "no settings for user " + userID}
	}
	if err != nil {
		return domain.UserSettings{}, domain.NewStorageError("load settings", err)
	}
	settings.ReminderInterval = time.Duration(intervalMS) * time.Millisecond
	settings.Units = domain.Units(units)
	return settings, nil
}

// SaveSettings validates and upserts a user's settings.
// Settings are local preferences and are not synced.
func (s *Store) SaveSettings(ctx context.Context, settings domain.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, due_every_n, reminder_interval_ms, warning_threshold, default_negative_volume, units)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			due_every_n = excluded.due_every_n,
			reminder_interval_ms = excluded.reminder_interval_ms,
			warning_threshold = excluded.warning_threshold,
			default_negative_volume = excluded.default_negative_volume,
			units = excluded.units
	`,
		settings.UserID,
		settings.DueEveryN,
		settings.ReminderInterval.Milliseconds(),
		settings.WarningThreshold,
		settings.DefaultNegativeVolume,
		string(settings.Units),
	)
	if err != nil {
		return domain.NewStorageError("save settings", err)
	}
	return nil
}
