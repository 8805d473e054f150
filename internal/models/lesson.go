package models

import "time"

// LessonType classifies a lesson for grading purposes. Non-classwork
// types carry a max score that bounds grades.
type LessonType string

const (
	LessonTypeClasswork   LessonType = "classwork"
	LessonTypeIndependent LessonType = "independent"
	LessonTypeProject     LessonType = "project"
	LessonTypeSOR         LessonType = "sor"
	LessonTypeSOCH        LessonType = "soch"
)

// Valid returns true when the lesson type is a supported value.
func (t LessonType) Valid() bool {
	switch t {
	case LessonTypeClasswork, LessonTypeIndependent, LessonTypeProject, LessonTypeSOR, LessonTypeSOCH:
		return true
	default:
		return false
	}
}

// AttendanceStatus represents a student's attendance for one lesson.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceExcused:
		return true
	default:
		return false
	}
}

// Lesson represents one occurrence of a subject on a calendar day.
type Lesson struct {
	ID         string     `db:"id" json:"id"`
	Date       time.Time  `db:"date" json:"date"`
	Topic      string     `db:"topic" json:"topic"`
	Homework   string     `db:"homework" json:"homework"`
	SubjectID  string     `db:"subject_id" json:"subject_id"`
	ClassID    string     `db:"class_id" json:"class_id"`
	LessonType LessonType `db:"lesson_type" json:"lesson_type"`
	MaxScore   *int       `db:"max_score" json:"max_score,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// LessonRecord is one student's grade/attendance/comment for one lesson.
// Exactly one record exists per (lesson, student) pair, created together
// with the lesson and only ever updated afterwards.
type LessonRecord struct {
	ID         string           `db:"id" json:"id"`
	LessonID   string           `db:"lesson_id" json:"lesson_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Grade      *int             `db:"grade" json:"grade"`
	Attendance AttendanceStatus `db:"attendance" json:"attendance"`
	Comment    *string          `db:"comment" json:"comment"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// LessonWithRecords is a lesson inflated with its full record set.
type LessonWithRecords struct {
	Lesson
	Records []LessonRecord `json:"records"`
}

// LessonRange bounds a lesson listing to a date window. Nil bounds are open.
type LessonRange struct {
	Start *time.Time
	End   *time.Time
}

// LessonFieldPatch carries optional scalar changes for a lesson. Nil
// pointers leave the column untouched; MaxScoreSet distinguishes
// clearing max_score from not mentioning it.
type LessonFieldPatch struct {
	Topic       *string
	Homework    *string
	LessonType  *LessonType
	MaxScore    *int
	MaxScoreSet bool
}

// Empty reports whether the patch changes nothing.
func (p LessonFieldPatch) Empty() bool {
	return p.Topic == nil && p.Homework == nil && p.LessonType == nil && !p.MaxScoreSet
}

// RecordPatch updates a single lesson record in place, keyed by record id.
// GradeSet with a nil Grade clears the grade.
type RecordPatch struct {
	ID         string
	Grade      *int
	GradeSet   bool
	Attendance *AttendanceStatus
	Comment    *string
	CommentSet bool
}
