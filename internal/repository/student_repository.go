package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dkenges/zhurnal-api/internal/models"
)

// StudentRepository manages persistence for students. Ownership is always
// checked transitively through the owning class.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListByClass returns the roster of a class owned by the teacher, ordered
// by last name then first name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID, teacherID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.first_name, s.last_name, s.classroom_id, s.created_at, s.updated_at
FROM students s
JOIN classes c ON c.id = s.classroom_id
WHERE s.classroom_id = $1 AND c.teacher_id = $2
ORDER BY s.last_name ASC, s.first_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Create persists a student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, first_name, last_name, classroom_id, created_at, updated_at) VALUES (:id, :first_name, :last_name, :classroom_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateOwned modifies a student's name fields when the owning class
// belongs to the teacher.
func (r *StudentRepository) UpdateOwned(ctx context.Context, student *models.Student, teacherID string) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students s SET first_name = $3, last_name = $4, updated_at = $5
FROM classes c
WHERE c.id = s.classroom_id AND s.id = $1 AND c.teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, student.ID, teacherID, student.FirstName, student.LastName, student.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOwned removes a student when the owning class belongs to the teacher.
func (r *StudentRepository) DeleteOwned(ctx context.Context, id, teacherID string) error {
	const query = `DELETE FROM students s USING classes c WHERE c.id = s.classroom_id AND s.id = $1 AND c.teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, teacherID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
