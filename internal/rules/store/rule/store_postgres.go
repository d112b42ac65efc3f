package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"leadgate/internal/rules/models"
)

// PostgresStore persists rules in PostgreSQL. Pure I/O; rule validation
// happens in the service before anything reaches this layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Rule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auto_approval_rules
			(id, name, priority, enabled, resource_type, conditions, outcome, confidence_threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		r.ID, r.Name, r.Priority, r.Enabled, r.ResourceType, conditions,
		string(r.Outcome), r.ConfidenceThreshold, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Rule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE auto_approval_rules
		SET name = $2, priority = $3, enabled = $4, resource_type = $5,
		    conditions = $6, outcome = $7, confidence_threshold = $8, updated_at = $9
		WHERE id = $1
	`,
		r.ID, r.Name, r.Priority, r.Enabled, r.ResourceType, conditions,
		string(r.Outcome), r.ConfidenceThreshold, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, priority, enabled, resource_type, conditions, outcome, confidence_threshold, created_at, updated_at
		FROM auto_approval_rules
		WHERE id = $1
	`, id)
	r, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find rule: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM auto_approval_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, enabled, resource_type, conditions, outcome, confidence_threshold, created_at, updated_at
		FROM auto_approval_rules
		ORDER BY priority, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

type ruleRow interface {
	Scan(dest ...any) error
}

func scanRule(row ruleRow) (*models.Rule, error) {
	var r models.Rule
	var conditions []byte
	var outcome string
	var threshold sql.NullFloat64
	if err := row.Scan(
		&r.ID, &r.Name, &r.Priority, &r.Enabled, &r.ResourceType,
		&conditions, &outcome, &threshold, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	r.Outcome = models.Outcome(outcome)
	if threshold.Valid {
		r.ConfidenceThreshold = &threshold.Float64
	}
	return &r, nil
}
