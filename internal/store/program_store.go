package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/model"
)

const programColumns = `
	id, organization_id, category, classification, gender, nickname, display_name,
	short_name, upstream_team_id, last_synced_at, created_at, updated_at`

func scanProgram(row rowScanner) (*model.Program, error) {
	var p model.Program
	err := row.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Category,
		&p.Classification,
		&p.Gender,
		&p.Nickname,
		&p.DisplayName,
		&p.ShortName,
		&p.UpstreamTeamID,
		&p.LastSyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProgram inserts or updates the program for (orgID, category,
// classification) and returns its id. An unknown orgID is reported as
// apperr.ErrNotFound.
func (s *OrganizationStore) UpsertProgram(ctx context.Context, orgID int, category string, classification model.Division, fields model.ProgramFields) (int, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return 0, apperr.Validation("store.UpsertProgram", "category is required")
	}
	if !classification.Valid() {
		return 0, apperr.Validation("store.UpsertProgram", fmt.Sprintf("unknown classification %q", classification))
	}

	query := `
		INSERT INTO programs (organization_id, category, classification, gender, nickname,
		                      display_name, short_name, upstream_team_id, last_synced_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (organization_id, category, classification) DO UPDATE SET
			gender = EXCLUDED.gender,
			nickname = EXCLUDED.nickname,
			display_name = EXCLUDED.display_name,
			short_name = EXCLUDED.short_name,
			upstream_team_id = EXCLUDED.upstream_team_id,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	var id int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query,
			orgID,
			category,
			classification,
			fields.Gender,
			fields.Nickname,
			fields.DisplayName,
			fields.ShortName,
			fields.UpstreamTeamID,
			time.Now(),
		).Scan(&id)
	})
	if pqCode(err) == pqForeignKeyViolation {
		return 0, apperr.NotFound("store.UpsertProgram", "organization", orgID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to upsert program %s/%s for organization %d: %w",
			category, classification, orgID, err)
	}

	return id, nil
}

// ListPrograms retrieves the programs of an organization ordered by category
func (s *OrganizationStore) ListPrograms(ctx context.Context, orgID int) ([]model.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs
		WHERE organization_id = $1
		ORDER BY category, classification`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs for organization %d: %w", orgID, err)
	}
	defer rows.Close()

	programs := []model.Program{}
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		programs = append(programs, *p)
	}

	return programs, rows.Err()
}

// CountPrograms returns the number of programs in the catalog
func (s *OrganizationStore) CountPrograms(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count programs: %w", err)
	}
	return count, nil
}
