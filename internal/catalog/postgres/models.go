package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"spinframe/internal/catalog"
)

var _ catalog.Catalog = (*Store)(nil)

const selectModels = `
	SELECT m.id, m.name, m.file_path, m.created_at,
	       COALESCE(array_agg(mm.material_id ORDER BY mm.material_id)
	                FILTER (WHERE mm.material_id IS NOT NULL), '{}')
	FROM models m
	LEFT JOIN model_materials mm ON mm.model_id = m.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*catalog.Model, error) {
	var m catalog.Model
	var materials pq.StringArray
	if err := row.Scan(&m.ID, &m.Name, &m.File, &m.CreatedAt, &materials); err != nil {
		return nil, err
	}
	m.Materials = []string(materials)
	return &m, nil
}

// ListModels returns all models with their materials, ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]catalog.Model, error) {
	query := selectModels + " GROUP BY m.id ORDER BY m.id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	models := []catalog.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

// GetModel returns a model by id or catalog.ErrModelNotFound.
func (s *Store) GetModel(ctx context.Context, id string) (*catalog.Model, error) {
	query := selectModels + " WHERE m.id = $1 GROUP BY m.id"

	m, err := scanModel(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrModelNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", id, err)
	}
	return m, nil
}

// DeleteModel removes a model. Its material links are removed by the foreign key cascade.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM models WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrModelNotFound, id)
	}
	return nil
}

// Materials returns every material id, ordered.
func (s *Store) Materials(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM materials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	materials := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		materials = append(materials, id)
	}
	return materials, rows.Err()
}

// PutModel inserts or updates a model and replaces its material links in one transaction.
// Unknown materials are created with their id as name.
func (s *Store) PutModel(ctx context.Context, m catalog.Model) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (id, name, file_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, file_path = EXCLUDED.file_path
	`, m.ID, m.Name, m.File)
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", m.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM model_materials WHERE model_id = $1", m.ID); err != nil {
		return fmt.Errorf("clear materials of %s: %w", m.ID, err)
	}

	if len(m.Materials) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO materials (id, name)
			SELECT unnest($1::text[]), unnest($1::text[])
			ON CONFLICT (id) DO NOTHING
		`, pq.Array(m.Materials))
		if err != nil {
			return fmt.Errorf("ensure materials of %s: %w", m.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO model_materials (model_id, material_id)
			SELECT $1, unnest($2::text[])
		`, m.ID, pq.Array(m.Materials))
		if err != nil {
			return fmt.Errorf("link materials of %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit model %s: %w", m.ID, err)
	}
	return nil
}

// Seed upserts every model, e.g. when importing a static catalog file.
func (s *Store) Seed(ctx context.Context, models []catalog.Model) error {
	var errs []error
	for _, m := range models {
		if err := s.PutModel(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
