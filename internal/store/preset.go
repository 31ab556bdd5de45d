package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/pacer/internal/domain"
)

const presetColumns = `id, user_id, name, drink_type, size, weight, created_ns, dirty, revision`

// SavePreset inserts or updates a preset and marks it dirty.
// The name is NFC normalized before storage.
func (s *Store) SavePreset(ctx context.Context, p domain.Preset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presets (`+presetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			drink_type = excluded.drink_type,
			size = excluded.size,
			weight = excluded.weight,
			dirty = 1,
			revision = presets.revision + 1
	`,
		p.ID,
		p.UserID,
		domain.NormalizeName(p.Name),
		p.DrinkType,
		p.Size,
		p.Weight,
		toNanos(p.CreatedAt),
	)
	if err != nil {
		return domain.NewStorageError("save preset", err)
	}
	return nil
}

// GetPreset returns a preset by id.
func (s *Store) GetPreset(ctx context.Context, id string) (domain.Preset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+presetColumns+` FROM presets WHERE id = ?`, id)
	p, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preset{}, domain.NewNotFound(domain.KindPreset, id)
	}
	if err != nil {
		return domain.Preset{}, domain.NewStorageError("get preset", err)
	}
	return p, nil
}

// ListPresets returns the user's presets in creation order.
func (s *Store) ListPresets(ctx context.Context, userID string) ([]domain.Preset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+presetColumns+`
		FROM presets
		WHERE user_id = ?
		ORDER BY created_ns ASC, id COLLATE BINARY ASC
	`, userID)
	if err != nil {
		return nil, domain.NewStorageError("list presets", err)
	}
	return collectPresets(rows)
}

// DeletePreset removes a preset. Events created from it keep their
// denormalized payload.
func (s *Store) DeletePreset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return domain.NewStorageError("delete preset", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("delete preset", err)
	}
	if n == 0 {
		return domain.NewNotFound(domain.KindPreset, id)
	}
	return nil
}

func scanPreset(row scanner) (domain.Preset, error) {
	var (
		p       domain.Preset
		created int64
		dirty   int
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.DrinkType, &p.Size, &p.Weight, &created, &dirty, &p.Revision); err != nil {
		return domain.Preset{}, err
	}
	p.CreatedAt = fromNanos(created)
	p.Dirty = dirty == 1
	return p, nil
}

func collectPresets(rows *sql.Rows) ([]domain.Preset, error) {
	defer rows.Close()

	presets := []domain.Preset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan preset", err)
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate presets", err)
	}
	return presets, nil
}
