package core

import (
	"context"

	"github.com/roach88/pacer/internal/domain"
)

// Settings returns the user's settings, or the defaults if none were saved.
func (s *Service) Settings(ctx context.Context) (domain.UserSettings, error) {
	return s.settings(ctx)
}

// UpdateSettings validates and saves the user's settings. Reminder latches
// are not re-primed: a new threshold applies from the next transition.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.UserSettings) error {
	settings.UserID = s.userID
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SaveSettings(ctx, settings)
}

func (s *Service) settings(ctx context.Context) (domain.UserSettings, error) {
	settings, err := s.store.LoadSettings(ctx, s.userID)
	if domain.IsNotFound(err) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.UserSettings{}, err
	}
	return settings, nil
}

