package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HistoryRepository persists snapshots scoped by owner.
type HistoryRepository interface {
	Create(ctx context.Context, snap Snapshot) error
	List(ctx context.Context, ownerID string) ([]Snapshot, error)
	Get(ctx context.Context, ownerID, id string) (*Snapshot, error)
	Latest(ctx context.Context, ownerID, group, date string) (*Snapshot, error)
	Replace(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, ownerID, id string) error
	ListOnOrBefore(ctx context.Context, ownerID, date string) ([]Snapshot, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]Snapshot, error)
	Owners(ctx context.Context) ([]string, error)
}

// PostgresRepository persists snapshots in Postgres with the rows embedded as JSONB.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const snapshotColumns = `id, owner_id, group_name, weekday, snapshot_date, created_at, students`

// Create inserts a snapshot.
func (r *PostgresRepository) Create(ctx context.Context, snap Snapshot) error {
	students, err := json.Marshal(snap.Students)
	if err != nil {
		return fmt.Errorf("encode students: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, owner_id, group_name, weekday, snapshot_date, created_at, students)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7::jsonb)
	`, snap.ID, snap.OwnerID, snap.Group, string(snap.Weekday), snap.Date, snap.CreatedAt, string(students))
	return err
}

// List returns the owner's snapshots, most recent first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]Snapshot, error) {
	return r.query(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE owner_id = $1
		ORDER BY snapshot_date DESC, created_at DESC
	`, ownerID)
}

// Get returns a snapshot, or nil when it does not exist.
func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*Snapshot, error) {
	return r.one(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
}

// Latest returns the most recently created snapshot for a group and date.
func (r *PostgresRepository) Latest(ctx context.Context, ownerID, group, date string) (*Snapshot, error) {
	return r.one(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE owner_id = $1 AND group_name = $2 AND snapshot_date = $3::date
		ORDER BY created_at DESC
		LIMIT 1
	`, ownerID, group, date)
}

// Replace rewrites the whole snapshot document. created_at is left untouched.
func (r *PostgresRepository) Replace(ctx context.Context, snap Snapshot) error {
	students, err := json.Marshal(snap.Students)
	if err != nil {
		return fmt.Errorf("encode students: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE snapshots
		SET group_name = $3, weekday = $4, snapshot_date = $5::date, students = $6::jsonb
		WHERE owner_id = $1 AND id = $2
	`, snap.OwnerID, snap.ID, snap.Group, string(snap.Weekday), snap.Date, string(students))
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes a snapshot.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListOnOrBefore returns the owner's snapshots dated at or before date.
func (r *PostgresRepository) ListOnOrBefore(ctx context.Context, ownerID, date string) ([]Snapshot, error) {
	return r.query(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE owner_id = $1 AND snapshot_date <= $2::date
		ORDER BY snapshot_date, created_at
	`, ownerID, date)
}

// ListCreatedSince returns snapshots of every owner created at or after since.
func (r *PostgresRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]Snapshot, error) {
	return r.query(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, since)
}

// Owners returns every owner with at least one snapshot.
func (r *PostgresRepository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM snapshots ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, snap)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (Snapshot, error) {
	var (
		snap     Snapshot
		weekday  string
		date     time.Time
		students []byte
	)
	if err := s.Scan(&snap.ID, &snap.OwnerID, &snap.Group, &weekday, &date, &snap.CreatedAt, &students); err != nil {
		return Snapshot{}, err
	}
	snap.Weekday = rosterWeekday(weekday)
	snap.Date = date.Format(DateLayout)
	if err := json.Unmarshal(students, &snap.Students); err != nil {
		return Snapshot{}, fmt.Errorf("decode students for %s: %w", snap.ID, err)
	}
	return snap, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
