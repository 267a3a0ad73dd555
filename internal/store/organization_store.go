package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/model"
)

const organizationColumns = `
	id, abbreviation, name, location, primary_color, alternate_color, logo_url,
	upstream_id, slug, provenance, last_synced_at, created_at, updated_at`

// OrganizationStore handles database operations for organizations and their programs
type OrganizationStore struct {
	db *sql.DB
}

// NewOrganizationStore creates a new OrganizationStore
func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*model.Organization, error) {
	var o model.Organization
	err := row.Scan(
		&o.ID,
		&o.Abbreviation,
		&o.Name,
		&o.Location,
		&o.PrimaryColor,
		&o.AlternateColor,
		&o.LogoURL,
		&o.UpstreamID,
		&o.Slug,
		&o.Provenance,
		&o.LastSyncedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertOrganization inserts or updates an organization keyed by abbreviation
// and returns its id. A duplicate abbreviation overwrites the descriptive
// fields and provenance and refreshes last_synced_at.
func (s *OrganizationStore) UpsertOrganization(ctx context.Context, o *model.Organization) (int, error) {
	abbr := model.NormalizeAbbreviation(o.Abbreviation)
	if abbr == "" {
		return 0, apperr.Validation("store.UpsertOrganization", "abbreviation is required")
	}

	query := `
		INSERT INTO organizations (abbreviation, name, location, primary_color, alternate_color,
		                           logo_url, upstream_id, slug, provenance, last_synced_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (abbreviation) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			primary_color = EXCLUDED.primary_color,
			alternate_color = EXCLUDED.alternate_color,
			logo_url = EXCLUDED.logo_url,
			upstream_id = EXCLUDED.upstream_id,
			slug = EXCLUDED.slug,
			provenance = EXCLUDED.provenance,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query,
			abbr,
			o.Name,
			o.Location,
			o.PrimaryColor,
			o.AlternateColor,
			o.LogoURL,
			o.UpstreamID,
			o.Slug,
			o.Provenance,
			time.Now(),
		).Scan(&o.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert organization %s: %w", abbr, err)
	}

	o.Abbreviation = abbr
	return o.ID, nil
}

// CreateOrganization inserts a new organization. An existing abbreviation
// is reported as apperr.ErrConflict.
func (s *OrganizationStore) CreateOrganization(ctx context.Context, o *model.Organization) error {
	abbr := model.NormalizeAbbreviation(o.Abbreviation)
	if abbr == "" {
		return apperr.Validation("store.CreateOrganization", "abbreviation is required")
	}

	query := `
		INSERT INTO organizations (abbreviation, name, location, primary_color, alternate_color,
		                           logo_url, upstream_id, slug, provenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + organizationColumns

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		created, err := scanOrganization(tx.QueryRowContext(ctx, query,
			abbr,
			o.Name,
			o.Location,
			o.PrimaryColor,
			o.AlternateColor,
			o.LogoURL,
			o.UpstreamID,
			o.Slug,
			o.Provenance,
		))
		if err != nil {
			return err
		}
		*o = *created
		return nil
	})
	if pqCode(err) == pqUniqueViolation {
		return apperr.Conflict("store.CreateOrganization",
			fmt.Sprintf("organization with abbreviation %s already exists", abbr), err)
	}
	if err != nil {
		return fmt.Errorf("failed to create organization %s: %w", abbr, err)
	}
	return nil
}

// UpdateOrganization overwrites the descriptive fields of an existing
// organization. The abbreviation is the lookup key and is left unchanged.
func (s *OrganizationStore) UpdateOrganization(ctx context.Context, o *model.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, location = $3, primary_color = $4, alternate_color = $5,
		    logo_url = $6, slug = $7, provenance = $8, updated_at = $9
		WHERE id = $1
		RETURNING ` + organizationColumns

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		updated, err := scanOrganization(tx.QueryRowContext(ctx, query,
			o.ID,
			o.Name,
			o.Location,
			o.PrimaryColor,
			o.AlternateColor,
			o.LogoURL,
			o.Slug,
			o.Provenance,
			time.Now(),
		))
		if err != nil {
			return err
		}
		*o = *updated
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("store.UpdateOrganization", "organization", o.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update organization %d: %w", o.ID, err)
	}
	return nil
}

// Get retrieves an organization by id
func (s *OrganizationStore) Get(ctx context.Context, id int) (*model.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	o, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.Get", "organization", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization %d: %w", id, err)
	}
	return o, nil
}

// GetByAbbreviation retrieves an organization by its natural key
func (s *OrganizationStore) GetByAbbreviation(ctx context.Context, abbr string) (*model.Organization, error) {
	abbr = model.NormalizeAbbreviation(abbr)
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE abbreviation = $1`

	o, err := scanOrganization(s.db.QueryRowContext(ctx, query, abbr))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.GetByAbbreviation", "organization", abbr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization %s: %w", abbr, err)
	}
	return o, nil
}

// GetWithPrograms retrieves an organization with all of its programs
func (s *OrganizationStore) GetWithPrograms(ctx context.Context, id int) (*model.Organization, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	programs, err := s.ListPrograms(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Programs = programs
	return o, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Query lists organizations matching filter ordered by name. An empty
// filter lists everything.
func (s *OrganizationStore) Query(ctx context.Context, filter model.OrganizationFilter) ([]model.Organization, error) {
	var (
		conds []string
		args  []any
	)

	if text := strings.TrimSpace(filter.Text); text != "" {
		args = append(args, "%"+likeEscaper.Replace(text)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(abbreviation ILIKE $%d OR name ILIKE $%d OR location ILIKE $%d)", n, n, n))
	}

	if filter.Classification != "" {
		args = append(args, string(filter.Classification))
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM programs p WHERE p.organization_id = organizations.id AND p.classification = $%d)",
			len(args)))
	}

	query := `SELECT ` + organizationColumns + ` FROM organizations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	organizations := []model.Organization{}
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		organizations = append(organizations, *o)
	}

	return organizations, rows.Err()
}

// Delete removes an organization; its programs are removed by cascade
func (s *OrganizationStore) Delete(ctx context.Context, id int) error {
	var affected int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete organization %d: %w", id, err)
	}
	if affected == 0 {
		return apperr.NotFound("store.Delete", "organization", id)
	}
	return nil
}

// CountOrganizations returns the number of organizations in the catalog
func (s *OrganizationStore) CountOrganizations(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return count, nil
}
