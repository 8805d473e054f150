package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dkenges/zhurnal-api/internal/models"
)

// ErrRecordMissing signals that a record patch referenced an id that does
// not exist under the lesson being updated.
var ErrRecordMissing = errors.New("lesson record not found")

const lessonColumns = `l.id, l.date, l.topic, l.homework, l.subject_id, l.class_id, l.lesson_type, l.max_score, l.created_at, l.updated_at`

// LessonRepository persists lessons and their per-student records. Lessons
// and records are always written together inside one transaction; readers
// receive lessons inflated with their full record set.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListForClass returns the class's lessons in the date window, date
// ascending, each with its records attached.
func (r *LessonRepository) ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	query := `SELECT ` + lessonColumns + `
FROM lessons l
JOIN classes c ON c.id = l.class_id
WHERE l.class_id = $1 AND c.teacher_id = $2`
	args := []interface{}{classID, teacherID}
	query, args = appendRange(query, args, rng)
	query += " ORDER BY l.date ASC"

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons for class: %w", err)
	}
	return r.attachRecords(ctx, lessons)
}

// ListForSubject returns the subject's lessons in the date window, scoped
// to the teacher through the subject's class.
func (r *LessonRepository) ListForSubject(ctx context.Context, subjectID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	query := `SELECT ` + lessonColumns + `
FROM lessons l
JOIN subjects s ON s.id = l.subject_id
JOIN classes c ON c.id = s.class_id
WHERE l.subject_id = $1 AND c.teacher_id = $2`
	args := []interface{}{subjectID, teacherID}
	query, args = appendRange(query, args, rng)
	query += " ORDER BY l.date ASC"

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons for subject: %w", err)
	}
	return r.attachRecords(ctx, lessons)
}

// FindOwned returns the lesson only when its class belongs to the teacher.
func (r *LessonRepository) FindOwned(ctx context.Context, id, teacherID string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + `
FROM lessons l
JOIN classes c ON c.id = l.class_id
WHERE l.id = $1 AND c.teacher_id = $2`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	return &lesson, nil
}

// FindWithRecords re-fetches a lesson together with its records. Used
// after every mutation so callers always observe the persisted state.
func (r *LessonRepository) FindWithRecords(ctx context.Context, id string) (*models.LessonWithRecords, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons l WHERE l.id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson with records: %w", err)
	}
	inflated, err := r.attachRecords(ctx, []models.Lesson{lesson})
	if err != nil {
		return nil, err
	}
	return &inflated[0], nil
}

// CreateWithRecords inserts the lesson plus one record per current roster
// student in a single transaction. The record set is frozen at creation
// time. A concurrent insert for the same (subject, date) resolves to
// create-or-fetch: the existing lesson id is returned with created=false.
func (r *LessonRepository) CreateWithRecords(ctx context.Context, lesson *models.Lesson) (string, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin create lesson: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var roster []string
	if err := tx.SelectContext(ctx, &roster, `SELECT id FROM students WHERE classroom_id = $1 ORDER BY last_name ASC, first_name ASC`, lesson.ClassID); err != nil {
		return "", false, fmt.Errorf("load roster: %w", err)
	}

	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now

	const insertLesson = `INSERT INTO lessons (id, date, topic, homework, subject_id, class_id, lesson_type, max_score, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (subject_id, date) DO NOTHING`
	res, err := tx.ExecContext(ctx, insertLesson, lesson.ID, lesson.Date, lesson.Topic, lesson.Homework, lesson.SubjectID, lesson.ClassID, lesson.LessonType, lesson.MaxScore, lesson.CreatedAt, lesson.UpdatedAt)
	if err != nil {
		return "", false, fmt.Errorf("insert lesson: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		var existingID string
		if err := tx.GetContext(ctx, &existingID, `SELECT id FROM lessons WHERE subject_id = $1 AND date = $2`, lesson.SubjectID, lesson.Date); err != nil {
			return "", false, fmt.Errorf("resolve existing lesson: %w", err)
		}
		return existingID, false, nil
	}

	const insertRecord = `INSERT INTO lesson_records (id, lesson_id, student_id, grade, attendance, comment, created_at, updated_at)
VALUES ($1, $2, $3, NULL, $4, NULL, $5, $6)`
	for _, studentID := range roster {
		if _, err := tx.ExecContext(ctx, insertRecord, uuid.NewString(), lesson.ID, studentID, models.AttendancePresent, now, now); err != nil {
			return "", false, fmt.Errorf("insert lesson record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit create lesson: %w", err)
	}
	committed = true
	return lesson.ID, true, nil
}

// UpdateWithRecords applies lesson field changes and record patches as one
// atomic unit. A patch naming an unknown record id aborts the whole
// transaction with ErrRecordMissing.
func (r *LessonRepository) UpdateWithRecords(ctx context.Context, lessonID string, fields models.LessonFieldPatch, patches []models.RecordPatch) error {
	if fields.Empty() && len(patches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update lesson: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	if !fields.Empty() {
		sets := []string{}
		args := []interface{}{}
		if fields.Topic != nil {
			sets = append(sets, fmt.Sprintf("topic = $%d", len(args)+1))
			args = append(args, *fields.Topic)
		}
		if fields.Homework != nil {
			sets = append(sets, fmt.Sprintf("homework = $%d", len(args)+1))
			args = append(args, *fields.Homework)
		}
		if fields.LessonType != nil {
			sets = append(sets, fmt.Sprintf("lesson_type = $%d", len(args)+1))
			args = append(args, *fields.LessonType)
		}
		if fields.MaxScoreSet {
			sets = append(sets, fmt.Sprintf("max_score = $%d", len(args)+1))
			args = append(args, fields.MaxScore)
		}
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
		args = append(args, now)
		args = append(args, lessonID)

		query := fmt.Sprintf("UPDATE lessons SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update lesson fields: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}
	}

	for _, patch := range patches {
		sets := []string{}
		args := []interface{}{}
		if patch.GradeSet {
			sets = append(sets, fmt.Sprintf("grade = $%d", len(args)+1))
			args = append(args, patch.Grade)
		}
		if patch.Attendance != nil {
			sets = append(sets, fmt.Sprintf("attendance = $%d", len(args)+1))
			args = append(args, *patch.Attendance)
		}
		if patch.CommentSet {
			sets = append(sets, fmt.Sprintf("comment = $%d", len(args)+1))
			args = append(args, patch.Comment)
		}
		if len(sets) == 0 {
			continue
		}
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
		args = append(args, now)
		args = append(args, patch.ID, lessonID)

		query := fmt.Sprintf("UPDATE lesson_records SET %s WHERE id = $%d AND lesson_id = $%d", strings.Join(sets, ", "), len(args)-1, len(args))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update lesson record: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("%w: %s", ErrRecordMissing, patch.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update lesson: %w", err)
	}
	committed = true
	return nil
}

// attachRecords inflates lessons with their records using one batched
// fetch grouped by lesson id.
func (r *LessonRepository) attachRecords(ctx context.Context, lessons []models.Lesson) ([]models.LessonWithRecords, error) {
	out := make([]models.LessonWithRecords, len(lessons))
	for i, lesson := range lessons {
		out[i] = models.LessonWithRecords{Lesson: lesson, Records: []models.LessonRecord{}}
	}
	if len(lessons) == 0 {
		return out, nil
	}

	ids := make([]string, len(lessons))
	for i, lesson := range lessons {
		ids[i] = lesson.ID
	}

	query, args, err := sqlx.In(`SELECT id, lesson_id, student_id, grade, attendance, comment, created_at, updated_at FROM lesson_records WHERE lesson_id IN (?) ORDER BY created_at ASC, id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("build records query: %w", err)
	}
	query = r.db.Rebind(query)

	var records []models.LessonRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("fetch lesson records: %w", err)
	}

	byLesson := make(map[string][]models.LessonRecord, len(lessons))
	for _, record := range records {
		byLesson[record.LessonID] = append(byLesson[record.LessonID], record)
	}
	for i := range out {
		if group, ok := byLesson[out[i].ID]; ok {
			out[i].Records = group
		}
	}
	return out, nil
}

func appendRange(query string, args []interface{}, rng models.LessonRange) (string, []interface{}) {
	if rng.Start != nil {
		query += fmt.Sprintf(" AND l.date >= $%d", len(args)+1)
		args = append(args, *rng.Start)
	}
	if rng.End != nil {
		query += fmt.Sprintf(" AND l.date <= $%d", len(args)+1)
		args = append(args, *rng.End)
	}
	return query, args
}
