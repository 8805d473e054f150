package models

import (
	"time"

	"github.com/lib/pq"
)

// Subject represents a course taught to a class on configured weekdays.
// LessonDays holds ISO weekday numbers (1 = Monday .. 7 = Sunday); only
// those weekdays produce cells in the lesson grid.
type Subject struct {
	ID         string        `db:"id" json:"id"`
	Name       string        `db:"name" json:"name"`
	ClassID    string        `db:"class_id" json:"class_id"`
	LessonDays pq.Int64Array `db:"lesson_days" json:"lesson_days"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}
