package models

import "time"

// Class represents a teacher's roster group, e.g. "10B".
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with its current students and subjects.
type ClassDetail struct {
	Class
	Students []Student `json:"students"`
	Subjects []Subject `json:"subjects"`
}
