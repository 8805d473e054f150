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

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListByClass returns subjects of a class owned by the teacher, name ascending.
func (r *SubjectRepository) ListByClass(ctx context.Context, classID, teacherID string) ([]models.Subject, error) {
	const query = `SELECT s.id, s.name, s.class_id, s.lesson_days, s.created_at, s.updated_at
FROM subjects s
JOIN classes c ON c.id = s.class_id
WHERE s.class_id = $1 AND c.teacher_id = $2
ORDER BY s.name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// FindOwned returns the subject only when its class belongs to the teacher.
func (r *SubjectRepository) FindOwned(ctx context.Context, id, teacherID string) (*models.Subject, error) {
	const query = `SELECT s.id, s.name, s.class_id, s.lesson_days, s.created_at, s.updated_at
FROM subjects s
JOIN classes c ON c.id = s.class_id
WHERE s.id = $1 AND c.teacher_id = $2`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return &subject, nil
}

// Create persists a subject record.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const query = `INSERT INTO subjects (id, name, class_id, lesson_days, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, subject.ID, subject.Name, subject.ClassID, subject.LessonDays, subject.CreatedAt, subject.UpdatedAt); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// UpdateOwned modifies a subject when its class belongs to the teacher.
func (r *SubjectRepository) UpdateOwned(ctx context.Context, subject *models.Subject, teacherID string) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects s SET name = $3, lesson_days = $4, updated_at = $5
FROM classes c
WHERE c.id = s.class_id AND s.id = $1 AND c.teacher_id = $2`
	res, err := r.db.ExecContext(ctx, query, subject.ID, teacherID, subject.Name, subject.LessonDays, subject.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOwned removes a subject together with its lessons and their
// records inside one transaction. Cascades are not database-enforced.
func (r *SubjectRepository) DeleteOwned(ctx context.Context, id, teacherID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subject cascade: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const guard = `SELECT 1 FROM subjects s JOIN classes c ON c.id = s.class_id WHERE s.id = $1 AND c.teacher_id = $2`
	var one int
	if err := tx.GetContext(ctx, &one, guard, id, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("verify subject ownership: %w", err)
	}

	steps := []string{
		`DELETE FROM lesson_records WHERE lesson_id IN (SELECT id FROM lessons WHERE subject_id = $1)`,
		`DELETE FROM lessons WHERE subject_id = $1`,
		`DELETE FROM subjects WHERE id = $1`,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("cascade delete subject: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subject cascade: %w", err)
	}
	committed = true
	return nil
}
