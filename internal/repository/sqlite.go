// Package repository persists community reports submitted through the
// HTTP API, so the report feed survives restarts.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tidewatch/riskmap-service/internal/domain"
)

type ReportRepository struct {
	db *sql.DB
}

func NewSQLite(path string) (*ReportRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &ReportRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return r, nil
}

func (r *ReportRepository) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			latitude REAL,
			longitude REAL,
			description TEXT,
			verified INTEGER NOT NULL DEFAULT 0,
			upvotes INTEGER NOT NULL DEFAULT 0,
			submitted_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_submitted_at ON reports(submitted_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Save upserts a report. Replays of the same ID are idempotent.
func (r *ReportRepository) Save(ctx context.Context, rep domain.CommunityReport) error {
	var lat, lng sql.NullFloat64
	if rep.Coordinate != nil {
		lat = sql.NullFloat64{Float64: rep.Coordinate.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: rep.Coordinate.Longitude, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, latitude, longitude, description, verified, upvotes, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			verified = excluded.verified,
			upvotes = excluded.upvotes
	`, rep.ID, lat, lng, rep.Description, rep.Verified, rep.Upvotes, rep.SubmittedAt)
	if err != nil {
		return fmt.Errorf("save report %s: %w", rep.ID, err)
	}
	return nil
}

// List returns all persisted reports in submission order.
func (r *ReportRepository) List(ctx context.Context) ([]domain.CommunityReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, description, verified, upvotes, submitted_at
		FROM reports
		ORDER BY submitted_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.CommunityReport
	for rows.Next() {
		var (
			rep      domain.CommunityReport
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&rep.ID, &lat, &lng, &rep.Description, &rep.Verified, &rep.Upvotes, &rep.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if lat.Valid && lng.Valid {
			rep.Coordinate = &domain.Coordinate{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return reports, nil
}

func (r *ReportRepository) Close() error {
	return r.db.Close()
}
