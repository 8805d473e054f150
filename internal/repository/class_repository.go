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

// ClassRepository manages persistence for classes. Every lookup and
// mutation is scoped to the owning teacher; a row belonging to another
// teacher behaves exactly like a missing row.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ListByTeacher returns all classes owned by the teacher, name ascending.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	const query = `SELECT id, name, teacher_id, created_at, updated_at FROM classes WHERE teacher_id = $1 ORDER BY name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindOwned returns the class only when it belongs to the teacher.
func (r *ClassRepository) FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error) {
	const query = `SELECT id, name, teacher_id, created_at, updated_at FROM classes WHERE id = $1 AND teacher_id = $2`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, teacher_id, created_at, updated_at) VALUES (:id, :name, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update renames a class owned by the teacher.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, updated_at = :updated_at WHERE id = :id AND teacher_id = :teacher_id`
	res, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCascade removes a class and everything hanging off it inside one
// transaction, in dependency order: lesson records, lessons, subjects,
// messages, students, then the class row. Messages go before students
// because messages.student_id references students. Cascades are not
// database-enforced, so a partial delete must never commit.
func (r *ClassRepository) DeleteCascade(ctx context.Context, id, teacherID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin class cascade: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const guard = `SELECT 1 FROM classes WHERE id = $1 AND teacher_id = $2`
	var one int
	if err := tx.GetContext(ctx, &one, guard, id, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("verify class ownership: %w", err)
	}

	steps := []string{
		`DELETE FROM lesson_records WHERE lesson_id IN (SELECT id FROM lessons WHERE class_id = $1)`,
		`DELETE FROM lessons WHERE class_id = $1`,
		`DELETE FROM subjects WHERE class_id = $1`,
		`DELETE FROM messages WHERE classroom_id = $1`,
		`DELETE FROM students WHERE classroom_id = $1`,
		`DELETE FROM classes WHERE id = $1`,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("cascade delete class: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit class cascade: %w", err)
	}
	committed = true
	return nil
}
