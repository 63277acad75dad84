package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
)

// PostgresRegistry implements Registry backed by PostgreSQL. All queries are
// scoped by the tenant_id column.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry creates a PostgreSQL-backed registry.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const ruleColumns = `id, name, rule_type, severity, state, order_no,
		expression, implementation_reference, err_message_id, description,
		created_at, updated_at`

func (r *PostgresRegistry) TenantRules(ctx context.Context, tenantID string, limit, offset int, state State) (*RuleCollection, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM validation_rules
		WHERE tenant_id = $1`
	args := []any{tenantID}
	if state != "" {
		query += ` AND state = $2`
		args = append(args, string(state))
	}
	query += fmt.Sprintf(`
		ORDER BY order_no ASC, created_at ASC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant rules: %w", err)
	}
	defer rows.Close()

	list := []*Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return &RuleCollection{Rules: list, TotalRecords: len(list)}, nil
}

func (r *PostgresRegistry) Rule(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM validation_rules
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *PostgresRegistry) Create(ctx context.Context, tenantID string, rule *Rule) error {
	now := time.Now()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO validation_rules
			(id, tenant_id, name, rule_type, severity, state, order_no,
			 expression, implementation_reference, err_message_id, description,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rule.ID, tenantID, rule.Name, string(rule.Type), string(rule.Severity),
		string(rule.State), rule.OrderNo, rule.Expression, rule.ImplementationRef,
		rule.ErrMessageID, rule.Description, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Update(ctx context.Context, tenantID string, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE validation_rules
		SET name = $1, rule_type = $2, severity = $3, state = $4,
			order_no = $5, expression = $6, implementation_reference = $7,
			err_message_id = $8, description = $9, updated_at = $10
		WHERE id = $11 AND tenant_id = $12
	`, rule.Name, string(rule.Type), string(rule.Severity), string(rule.State),
		rule.OrderNo, rule.Expression, rule.ImplementationRef, rule.ErrMessageID,
		rule.Description, rule.UpdatedAt, rule.ID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *PostgresRegistry) EnabledRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM validation_rules
		WHERE tenant_id = $1 AND state = $2
		ORDER BY order_no ASC, created_at ASC
	`, tenantID, string(StateEnabled))
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	defer rows.Close()

	var list []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule               Rule
		ruleType, severity string
		state              string
		expression         sql.NullString
		implRef            sql.NullString
		description        sql.NullString
	)
	err := row.Scan(&rule.ID, &rule.Name, &ruleType, &severity, &state,
		&rule.OrderNo, &expression, &implRef, &rule.ErrMessageID, &description,
		&rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.Type = RuleType(ruleType)
	rule.Severity = Severity(severity)
	rule.State = State(state)
	rule.Expression = expression.String
	rule.ImplementationRef = implRef.String
	rule.Description = description.String
	return &rule, nil
}
