package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository persists students scoped by owner.
type Repository interface {
	List(ctx context.Context, ownerID string) ([]Student, error)
	Get(ctx context.Context, ownerID, id string) (*Student, error)
	Create(ctx context.Context, st Student) error
	Update(ctx context.Context, st Student) error
	Delete(ctx context.Context, ownerID, id string) error
}

// PostgresRepository stores students in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const studentColumns = `id, owner_id, full_name, phone_number, group_name, week_days, created_at, updated_at`

// List returns the owner's students in creation order.
func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// Get returns a single student, or nil when it does not exist.
func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Create inserts a new student.
func (r *PostgresRepository) Create(ctx context.Context, st Student) error {
	days, err := json.Marshal(st.WeekDays)
	if err != nil {
		return fmt.Errorf("encode week days: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO students (id, owner_id, full_name, phone_number, group_name, week_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
	`, st.ID, st.OwnerID, st.FullName, st.PhoneNumber, st.Group, string(days), st.CreatedAt, st.UpdatedAt)
	return err
}

// Update rewrites the editable fields of an existing student.
func (r *PostgresRepository) Update(ctx context.Context, st Student) error {
	days, err := json.Marshal(st.WeekDays)
	if err != nil {
		return fmt.Errorf("encode week days: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET full_name = $3, phone_number = $4, group_name = $5, week_days = $6::jsonb, updated_at = $7
		WHERE owner_id = $1 AND id = $2
	`, st.OwnerID, st.ID, st.FullName, st.PhoneNumber, st.Group, string(days), st.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes a student.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(s scanner) (Student, error) {
	var (
		st   Student
		days []byte
	)
	if err := s.Scan(&st.ID, &st.OwnerID, &st.FullName, &st.PhoneNumber, &st.Group, &days, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return Student{}, err
	}
	if len(days) > 0 {
		if err := json.Unmarshal(days, &st.WeekDays); err != nil {
			return Student{}, fmt.Errorf("decode week days for %s: %w", st.ID, err)
		}
	}
	return st, nil
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
