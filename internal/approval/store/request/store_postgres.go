package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"leadgate/internal/approval/models"
)

// PostgresStore persists approval requests in PostgreSQL. Status changes go
// through a single conditional UPDATE so two deciders racing on the same
// request cannot both win.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, approval_type, resource_id, resource_data, metadata, callback_url,
	status, created_at, timeout_at, escalated_at, decided_at, decided_by,
	decision_reason, matched_rule_id`

func (s *PostgresStore) Create(ctx context.Context, r *models.ApprovalRequest) error {
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approval_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID, r.ApprovalType, r.ResourceID, []byte(r.ResourceData), metadata, r.CallbackURL,
		string(r.Status), r.CreatedAt, r.TimeoutAt, r.EscalatedAt, r.DecidedAt,
		nullString(r.DecidedBy), nullString(r.DecisionReason), r.MatchedRuleID,
	)
	if err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM approval_requests WHERE id = $1
	`, id)
	r, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find approval request: %w", err)
	}
	return r, nil
}

// Transition applies the status change and stamp in one transaction: a
// conditional UPDATE ... RETURNING guarded on the expected from-states, plus
// an append to the transition history. A zero-row update against an existing
// request means another writer got there first.
func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, from []models.Status, to models.Status, stamp models.TransitionStamp) (*models.ApprovalRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	// FOR UPDATE holds the row until commit so prev cannot go stale between
	// this read and the guarded update; the history row records the exact
	// from-status.
	var prev string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM approval_requests WHERE id = $1 FOR UPDATE`, id,
	).Scan(&prev); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read current status: %w", err)
	}

	fromStates := make([]string, len(from))
	for i, st := range from {
		fromStates[i] = string(st)
	}

	timeoutExpr := "timeout_at"
	if stamp.ClearTimeout {
		timeoutExpr = "NULL"
	} else if stamp.TimeoutAt != nil {
		timeoutExpr = "$9"
	}

	query := `
		UPDATE approval_requests
		SET status = $3,
		    decided_at = COALESCE($4, decided_at),
		    decided_by = COALESCE($5, decided_by),
		    decision_reason = COALESCE($6, decision_reason),
		    escalated_at = COALESCE($7, escalated_at),
		    matched_rule_id = COALESCE($8, matched_rule_id),
		    timeout_at = ` + timeoutExpr + `
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + requestColumns

	args := []any{
		id, pq.Array(fromStates), string(to),
		stamp.DecidedAt, nullString(stamp.DecidedBy), nullString(stamp.DecisionReason),
		stamp.EscalatedAt, stamp.MatchedRuleID,
	}
	if timeoutExpr == "$9" {
		args = append(args, stamp.TimeoutAt)
	}

	row := tx.QueryRowContext(ctx, query, args...)
	r, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStale
		}
		return nil, fmt.Errorf("transition approval request: %w", err)
	}

	occurred := time.Now().UTC()
	if stamp.DecidedAt != nil {
		occurred = *stamp.DecidedAt
	} else if stamp.EscalatedAt != nil {
		occurred = *stamp.EscalatedAt
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO approval_transitions (request_id, from_status, to_status, decided_by, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, prev, string(to), nullString(stamp.HistoryActor()), nullString(stamp.HistoryReason()), occurred); err != nil {
		return nil, fmt.Errorf("record transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, approvalType string, limit int) ([]*models.ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE status IN ('pending', 'escalated')`
	args := []any{}
	if approvalType != "" {
		args = append(args, approvalType)
		query += fmt.Sprintf(" AND approval_type = $%d", len(args))
	}
	query += " ORDER BY created_at"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE status IN ('pending', 'escalated') AND timeout_at IS NOT NULL AND timeout_at <= $1
		ORDER BY created_at
	`, now)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM approval_requests GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM approval_requests
		WHERE status IN ('pending', 'escalated') AND timeout_at IS NOT NULL AND timeout_at <= $1
	`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overdue: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListTransitions(ctx context.Context, requestID uuid.UUID) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, from_status, to_status, decided_by, reason, occurred_at
		FROM approval_transitions
		WHERE request_id = $1
		ORDER BY id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var t models.Transition
		var fromStatus, toStatus string
		var decidedBy, reason sql.NullString
		if err := rows.Scan(&t.ID, &t.RequestID, &fromStatus, &toStatus, &decidedBy, &reason, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = models.Status(fromStatus)
		t.To = models.Status(toStatus)
		t.DecidedBy = decidedBy.String
		t.Reason = reason.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByMatchedRule(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRequest, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE matched_rule_id = $1
		  AND status IN ('auto_approved', 'approved', 'rejected', 'expired')
		ORDER BY created_at
	`, ruleID)
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]*models.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approval requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval requests: %w", err)
	}
	return out, nil
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.ApprovalRequest, error) {
	var r models.ApprovalRequest
	var resourceData, metadata []byte
	var status string
	var callbackURL, decidedBy, decisionReason sql.NullString
	if err := row.Scan(
		&r.ID, &r.ApprovalType, &r.ResourceID, &resourceData, &metadata, &callbackURL,
		&status, &r.CreatedAt, &r.TimeoutAt, &r.EscalatedAt, &r.DecidedAt, &decidedBy,
		&decisionReason, &r.MatchedRuleID,
	); err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	r.CallbackURL = callbackURL.String
	r.DecidedBy = decidedBy.String
	r.DecisionReason = decisionReason.String
	if len(resourceData) > 0 {
		r.ResourceData = json.RawMessage(resourceData)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
