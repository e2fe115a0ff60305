package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const templateColumns = "id, name, is_active, is_draft, case_sensitive, source_ids_json, exact_matches_json, keywords_json, patterns_json, exclude_keywords_json, exclude_patterns_json, config_json, created_at, updated_at"

// CreateTemplate inserts a template. Rule lists are stored as JSON arrays.
func (s *Store) CreateTemplate(ctx context.Context, tpl *Template) (*Template, error) {
	if tpl == nil {
		return nil, errors.New("template is nil")
	}
	if strings.TrimSpace(tpl.Name) == "" {
		return nil, errors.New("template name is required")
	}

	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (name, is_active, is_draft, case_sensitive, source_ids_json, exact_matches_json,
		     keywords_json, patterns_json, exclude_keywords_json, exclude_patterns_json, config_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.Name,
		boolToInt(tpl.IsActive),
		boolToInt(tpl.IsDraft),
		boolToInt(tpl.CaseSensitive),
		marshalStrings(tpl.SourceIDs),
		marshalStrings(tpl.ExactMatches),
		marshalStrings(tpl.Keywords),
		marshalStrings(tpl.Patterns),
		marshalStrings(tpl.ExcludeKeywords),
		marshalStrings(tpl.ExcludePatterns),
		nullableString(tpl.ConfigJSON),
		tpl.CreatedAt.Format(time.RFC3339Nano),
		tpl.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

// GetTemplate fetches a template by identifier. Returns nil when absent;
// recordings hold weak template references, so a deleted template is not an
// error.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// Templates returns all templates ordered by creation time, oldest first.
// The matcher relies on this ordering for deterministic tie-breaks.
func (s *Store) Templates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func marshalStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil
	}
	return values
}

func scanTemplate(scanner rowScanner) (*Template, error) {
	var (
		id              int64
		name            string
		isActive        sql.NullInt64
		isDraft         sql.NullInt64
		caseSensitive   sql.NullInt64
		sourceIDs       sql.NullString
		exactMatches    sql.NullString
		keywords        sql.NullString
		patterns        sql.NullString
		excludeKeywords sql.NullString
		excludePatterns sql.NullString
		configJSON      sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&isActive,
		&isDraft,
		&caseSensitive,
		&sourceIDs,
		&exactMatches,
		&keywords,
		&patterns,
		&excludeKeywords,
		&excludePatterns,
		&configJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	tpl := &Template{
		ID:              id,
		Name:            name,
		IsActive:        isActive.Valid && isActive.Int64 != 0,
		IsDraft:         isDraft.Valid && isDraft.Int64 != 0,
		CaseSensitive:   caseSensitive.Valid && caseSensitive.Int64 != 0,
		SourceIDs:       unmarshalStrings(sourceIDs),
		ExactMatches:    unmarshalStrings(exactMatches),
		Keywords:        unmarshalStrings(keywords),
		Patterns:        unmarshalStrings(patterns),
		ExcludeKeywords: unmarshalStrings(excludeKeywords),
		ExcludePatterns: unmarshalStrings(excludePatterns),
		ConfigJSON:      configJSON.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		tpl.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		tpl.UpdatedAt = updated
	}
	return tpl, nil
}
