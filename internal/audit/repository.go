package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs through pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListAudit implements Repository.
func (r *PGRepository) ListAudit(ctx context.Context, q Query) ([]TimelineRow, error) {
	sql, args := buildListQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row     TimelineRow
			actorID *int64
		)
		if err := rows.Scan(&row.ID, &row.At, &actorID, &row.Action, &row.Entity, &row.EntityID, &row.OldValue, &row.NewValue); err != nil {
			return nil, err
		}
		if actorID != nil {
			row.ActorID = *actorID
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func buildListQuery(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at <= $%d", q.To)
	}
	if q.ActorID > 0 {
		add("actor_id = $%d", q.ActorID)
	}
	if q.Entity != "" {
		add("entity = $%d", q.Entity)
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	var b strings.Builder
	b.WriteString(`SELECT id, occurred_at, actor_id, action, entity, entity_id, old_value, new_value FROM audit_logs`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
