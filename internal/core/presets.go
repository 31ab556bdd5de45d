package core

import (
	"context"

	"github.com/roach88/pacer/internal/domain"
)

// PresetInput holds the user-editable fields of a preset.
type PresetInput struct {
	Name      string
	DrinkType string
	Size      float64
	Weight    float64
}

// SavePreset creates a preset.
func (s *Service) SavePreset(ctx context.Context, in PresetInput) (domain.Preset, error) {
	p := domain.Preset{
		ID:        s.ids.Generate(),
		UserID:    s.userID,
		Name:      domain.NormalizeName(in.Name),
		DrinkType: in.DrinkType,
		Size:      in.Size,
		Weight:    in.Weight,
		CreatedAt: s.clock.Now(),
	}
	if err := p.Validate(); err != nil {
		return domain.Preset{}, err
	}
	if err := s.store.SavePreset(ctx, p); err != nil {
		return domain.Preset{}, err
	}
	p.Dirty = true
	p.Revision = 1

	s.logger.Debug("preset saved", "preset_id", p.ID, "name", p.Name)
	s.syncer.NotifyDirty()
	return p, nil
}

// UpdatePreset rewrites an existing preset's fields. Events already
// created from it keep their copied payload.
func (s *Service) UpdatePreset(ctx context.Context, presetID string, in PresetInput) (domain.Preset, error) {
	p, err := s.store.GetPreset(ctx, presetID)
	if err != nil {
		return domain.Preset{}, err
	}
	p.Name = domain.NormalizeName(in.Name)
	p.DrinkType = in.DrinkType
	p.Size = in.Size
	p.Weight = in.Weight
	if err := p.Validate(); err != nil {
		return domain.Preset{}, err
	}
	if err := s.store.SavePreset(ctx, p); err != nil {
		return domain.Preset{}, err
	}

	s.syncer.NotifyDirty()
	return s.store.GetPreset(ctx, presetID)
}

// Presets lists the user's presets.
func (s *Service) Presets(ctx context.Context) ([]domain.Preset, error) {
	return s.store.ListPresets(ctx, s.userID)
}

// DeletePreset removes a preset locally. Events created from it are
// unaffected.
func (s *Service) DeletePreset(ctx context.Context, presetID string) error {
	if err := s.store.DeletePreset(ctx, presetID); err != nil {
		return err
	}
	s.logger.Debug("preset deleted", "preset_id", presetID)
	return nil
}
