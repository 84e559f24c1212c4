package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"tenantgate/pkg/models"
)

// SQLStore keeps entries in the cost_entries table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over db. The pgx stdlib driver is expected.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const entryColumns = "id, recorded_at, tenant_id, endpoint, provider, description, unit_cost, quantity, total_cost, compensates"

func (s *SQLStore) Append(ctx context.Context, e models.CostEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cost_entries ("+entryColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		e.ID, e.Timestamp, nullString(e.TenantID), e.Endpoint, e.Provider, e.Description, e.UnitCost, e.Quantity, e.TotalCost, nullString(e.Compensates))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && e.Compensates != nil {
		return ErrAlreadyCompensated
	}
	if err != nil {
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.CostEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM cost_entries WHERE id = $1", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]models.CostEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("recorded_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("recorded_at < $%d", f.To)
	}
	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
	}
	query := "SELECT " + entryColumns + " FROM cost_entries"
	if f.PlatformOnly {
		where = append(where, "tenant_id IS NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	defer rows.Close()

	var out []models.CostEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Truncate(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cost_entries")
	if err != nil {
		return 0, fmt.Errorf("failed to clear cost entries: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (models.CostEntry, error) {
	var (
		e           models.CostEntry
		tenant      sql.NullString
		compensates sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Timestamp, &tenant, &e.Endpoint, &e.Provider, &e.Description, &e.UnitCost, &e.Quantity, &e.TotalCost, &compensates); err != nil {
		return models.CostEntry{}, err
	}
	e.TenantID = stringPtr(tenant)
	e.Compensates = stringPtr(compensates)
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
