package repository

import (
	"context"
	_ "embed"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantgate/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

const tenantColumns = "id, name, slug, tier, is_white_label, features, theme, is_active, version, created_at, updated_at"

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	var tier string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &tier, &t.IsWhiteLabel, &t.Features, &t.Theme, &t.IsActive, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Tier = models.Tier(tier)
	if t.Features == nil {
		t.Features = map[string]bool{}
	}
	return &t, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return scanTenant(s.db.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id))
}

func (s *PostgresStore) GetMembershipsForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	rows, err := s.db.Query(ctx, `SELECT m.user_id, m.tenant_id, m.role, m.is_primary, m.created_at
		FROM memberships m JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND t.is_active
		ORDER BY m.created_at, m.tenant_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var m models.Membership
		var role string
		if err := rows.Scan(&m.UserID, &m.TenantID, &role, &m.IsPrimary, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.Features == nil {
		tenant.Features = map[string]bool{}
	}
	row := s.db.QueryRow(ctx, `INSERT INTO tenants (id, name, slug, tier, is_white_label, features, theme, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING version, created_at, updated_at`,
		tenant.ID, tenant.Name, tenant.Slug, string(tenant.Tier), tenant.IsWhiteLabel, tenant.Features, tenant.Theme, tenant.IsActive)
	return mapErr(row.Scan(&tenant.Version, &tenant.CreatedAt, &tenant.UpdatedAt))
}

func (s *PostgresStore) UpdateTenantFeatures(ctx context.Context, id string, features map[string]bool) (*models.Tenant, error) {
	if features == nil {
		features = map[string]bool{}
	}
	return scanTenant(s.db.QueryRow(ctx, `UPDATE tenants
		SET features = features || $2::jsonb, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+tenantColumns, id, features))
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	features := tenant.Features
	if features == nil {
		features = map[string]bool{}
	}
	updated, err := scanTenant(s.db.QueryRow(ctx, `UPDATE tenants
		SET name = $2, tier = $3, is_white_label = $4, features = $5, theme = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $7
		RETURNING `+tenantColumns,
		tenant.ID, tenant.Name, string(tenant.Tier), tenant.IsWhiteLabel, features, tenant.Theme, tenant.Version))
	if !errors.Is(err, ErrNotFound) {
		return updated, err
	}
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)", tenant.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) DisableTenant(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE tenants SET is_active = FALSE, version = version + 1, updated_at = now() WHERE id = $1", id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, "UPDATE custom_domains SET is_active = FALSE, updated_at = now() WHERE tenant_id = $1 AND is_active", id)
		return err
	})
}

func (s *PostgresStore) AddMembership(ctx context.Context, m models.Membership) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if m.IsPrimary {
			if _, err := tx.Exec(ctx, "UPDATE memberships SET is_primary = FALSE WHERE user_id = $1 AND tenant_id <> $2 AND is_primary", m.UserID, m.TenantID); err != nil {
				return err
			}
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			_, err := tx.Exec(ctx, `INSERT INTO memberships (user_id, tenant_id, role, is_primary)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = EXCLUDED.role, is_primary = EXCLUDED.is_primary`,
				m.UserID, m.TenantID, string(m.Role), m.IsPrimary)
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO memberships (user_id, tenant_id, role, is_primary, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = EXCLUDED.role, is_primary = EXCLUDED.is_primary`,
			m.UserID, m.TenantID, string(m.Role), m.IsPrimary, createdAt)
		return err
	})
	return mapErr(err)
}

const domainColumns = `id, tenant_id, domain, verification_status, ssl_status, cname_target, verification_token,
	verification_attempts, last_error, is_primary, is_active, verified_at, created_at, updated_at`

func scanDomain(row pgx.Row) (*models.CustomDomain, error) {
	var d models.CustomDomain
	var vs, ss string
	err := row.Scan(&d.ID, &d.TenantID, &d.Domain, &vs, &ss, &d.CNAMETarget, &d.VerificationToken,
		&d.VerificationAttempts, &d.LastError, &d.IsPrimary, &d.IsActive, &d.VerifiedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	d.VerificationStatus = models.VerificationStatus(vs)
	d.SSLStatus = models.SSLStatus(ss)
	return &d, nil
}

func (s *PostgresStore) CreateDomain(ctx context.Context, d *models.CustomDomain) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	row := s.db.QueryRow(ctx, `INSERT INTO custom_domains
		(id, tenant_id, domain, verification_status, ssl_status, cname_target, verification_token,
		 verification_attempts, last_error, is_primary, is_active, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		d.ID, d.TenantID, d.Domain, string(d.VerificationStatus), string(d.SSLStatus), d.CNAMETarget, d.VerificationToken,
		d.VerificationAttempts, d.LastError, d.IsPrimary, d.IsActive, d.VerifiedAt)
	return mapErr(row.Scan(&d.CreatedAt, &d.UpdatedAt))
}

func (s *PostgresStore) GetDomain(ctx context.Context, id string) (*models.CustomDomain, error) {
	return scanDomain(s.db.QueryRow(ctx, "SELECT "+domainColumns+" FROM custom_domains WHERE id = $1", id))
}

func (s *PostgresStore) GetDomainByName(ctx context.Context, name string) (*models.CustomDomain, error) {
	return scanDomain(s.db.QueryRow(ctx, "SELECT "+domainColumns+" FROM custom_domains WHERE domain = $1", name))
}

func (s *PostgresStore) ListDomains(ctx context.Context, tenantID string) ([]*models.CustomDomain, error) {
	rows, err := s.db.Query(ctx, "SELECT "+domainColumns+" FROM custom_domains WHERE tenant_id = $1 ORDER BY created_at, domain", tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CustomDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDomain(ctx context.Context, d *models.CustomDomain) error {
	row := s.db.QueryRow(ctx, `UPDATE custom_domains
		SET verification_status = $2, ssl_status = $3, verification_attempts = $4, last_error = $5,
		    is_active = $6, verified_at = $7, updated_at = $8
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, string(d.VerificationStatus), string(d.SSLStatus), d.VerificationAttempts, d.LastError,
		d.IsActive, d.VerifiedAt, d.UpdatedAt)
	return mapErr(row.Scan(&d.UpdatedAt))
}

func (s *PostgresStore) SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, "SELECT tenant_id FROM custom_domains WHERE id = $1 FOR UPDATE", domainID).Scan(&owner); err != nil {
			return err
		}
		if owner != tenantID {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, "UPDATE custom_domains SET is_primary = FALSE, updated_at = now() WHERE tenant_id = $1 AND is_primary AND id <> $2", tenantID, domainID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE custom_domains SET is_primary = TRUE, updated_at = now() WHERE id = $1 AND NOT is_primary", domainID)
		return err
	})
	return mapErr(err)
}

func (s *PostgresStore) DeleteDomain(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM custom_domains WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
