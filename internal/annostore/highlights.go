/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aledro/docreaderd/internal/domain"
)

// Highlight is the flattened PDF/EPUB highlight shape with page geometry:
// an optional page region plus per-line rects for multi-line selections.
// Coordinates are normalized [0,1], origin top-left.
type Highlight struct {
	ID             string               `json:"id"`
	BookID         string               `json:"bookId"`
	UserID         string               `json:"userId,omitempty"`
	DocumentFormat string               `json:"documentFormat"` // "epub" or "pdf"
	CFI            string               `json:"cfi"`
	Page           *int                 `json:"page,omitempty"`
	Text           string               `json:"text"`
	Chapter        string               `json:"chapter,omitempty"`
	PagePercent    *float64             `json:"pagePercent,omitempty"`
	Color          string               `json:"color"`
	Annotation     string               `json:"annotation,omitempty"`
	TextPrefix     string               `json:"textPrefix,omitempty"`
	TextSuffix     string               `json:"textSuffix,omitempty"`
	Region         *domain.BoundingBox  `json:"region,omitempty"`
	Rects          []domain.BoundingBox `json:"rects,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// HighlightQuery filters ListHighlights. When Page is set the result is
// ordered top-to-bottom then left-to-right by region; otherwise newest
// first.
type HighlightQuery struct {
	BookID string
	UserID string
	Page   *int
	Limit  int
	Offset int
}

// SaveHighlight inserts or updates a highlight by id.
func (s *Store) SaveHighlight(ctx context.Context, h Highlight) error {
	if h.ID == "" || h.BookID == "" {
		return domain.NewError(domain.KindInvalidSelector, "highlight id and bookId are required")
	}
	if h.DocumentFormat != "epub" && h.DocumentFormat != "pdf" {
		return domain.NewError(domain.KindInvalidSelector, "documentFormat must be epub or pdf")
	}
	var rects sql.NullString
	if len(h.Rects) > 0 {
		b, err := json.Marshal(h.Rects)
		if err != nil {
			return fmt.Errorf("marshal rects: %w", err)
		}
		rects = sql.NullString{String: string(b), Valid: true}
	}
	var rx, ry, rw, rh sql.NullFloat64
	if h.Region != nil {
		rx = sql.NullFloat64{Float64: h.Region.X, Valid: true}
		ry = sql.NullFloat64{Float64: h.Region.Y, Valid: true}
		rw = sql.NullFloat64{Float64: h.Region.Width, Valid: true}
		rh = sql.NullFloat64{Float64: h.Region.Height, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO highlights (id, book_id, user_id, document_format, cfi, page, text, chapter, page_percent,
			color, annotation, text_prefix, text_suffix, region_x, region_y, region_width, region_height,
			rects_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			book_id=excluded.book_id, user_id=excluded.user_id, document_format=excluded.document_format,
			cfi=excluded.cfi, page=excluded.page, text=excluded.text, chapter=excluded.chapter,
			page_percent=excluded.page_percent, color=excluded.color, annotation=excluded.annotation,
			text_prefix=excluded.text_prefix, text_suffix=excluded.text_suffix,
			region_x=excluded.region_x, region_y=excluded.region_y,
			region_width=excluded.region_width, region_height=excluded.region_height,
			rects_json=excluded.rects_json, updated_at=excluded.updated_at`,
		h.ID, h.BookID, nullStr(h.UserID), h.DocumentFormat, h.CFI, nullInt(h.Page), h.Text,
		nullStr(h.Chapter), nullFloat(h.PagePercent), h.Color, nullStr(h.Annotation),
		nullStr(h.TextPrefix), nullStr(h.TextSuffix), rx, ry, rw, rh, rects,
		fmtTime(h.CreatedAt), fmtTime(h.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save highlight: %w", err)
	}
	return nil
}

// GetHighlight returns one highlight by id, or ResourceNotFound.
func (s *Store) GetHighlight(ctx context.Context, id string) (*Highlight, error) {
	row := s.db.QueryRowContext(ctx, highlightCols+` FROM highlights WHERE id = ?`, id)
	h, err := scanHighlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ResourceNotFound(id)
	}
	return h, err
}

// ListHighlights returns highlights matching the query. Page-scoped queries
// order by region top-to-bottom then left-to-right so multi-column
// selections come back in visual order.
func (s *Store) ListHighlights(ctx context.Context, q HighlightQuery) ([]Highlight, error) {
	where := " WHERE 1=1"
	var args []any
	if q.BookID != "" {
		where += " AND book_id = ?"
		args = append(args, q.BookID)
	}
	if q.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, q.UserID)
	}
	order := " ORDER BY created_at DESC"
	if q.Page != nil {
		where += " AND page = ?"
		args = append(args, *q.Page)
		order = " ORDER BY region_y ASC, region_x ASC"
	}
	query := highlightCols + ` FROM highlights` + where + order
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// DeleteHighlight removes one highlight; unknown ids are a no-op.
func (s *Store) DeleteHighlight(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	return nil
}

const highlightCols = `SELECT id, book_id, user_id, document_format, cfi, page, text, chapter, page_percent,
	color, annotation, text_prefix, text_suffix, region_x, region_y, region_width, region_height,
	rects_json, created_at, updated_at`

func scanHighlight(row rowScanner) (*Highlight, error) {
	var (
		h                      Highlight
		userID, chapter        sql.NullString
		annotation             sql.NullString
		prefix, suffix         sql.NullString
		page                   sql.NullInt64
		pagePercent            sql.NullFloat64
		rx, ry, rw, rh         sql.NullFloat64
		rects                  sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&h.ID, &h.BookID, &userID, &h.DocumentFormat, &h.CFI, &page, &h.Text, &chapter,
		&pagePercent, &h.Color, &annotation, &prefix, &suffix, &rx, &ry, &rw, &rh, &rects,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	h.UserID = userID.String
	h.Chapter = chapter.String
	h.Annotation = annotation.String
	h.TextPrefix = prefix.String
	h.TextSuffix = suffix.String
	if page.Valid {
		p := int(page.Int64)
		h.Page = &p
	}
	if pagePercent.Valid {
		h.PagePercent = &pagePercent.Float64
	}
	if rx.Valid {
		h.Region = &domain.BoundingBox{X: rx.Float64, Y: ry.Float64, Width: rw.Float64, Height: rh.Float64}
	}
	if rects.Valid && rects.String != "" {
		if err := json.Unmarshal([]byte(rects.String), &h.Rects); err != nil {
			return nil, fmt.Errorf("unmarshal rects: %w", err)
		}
	}
	if h.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if h.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &h, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
