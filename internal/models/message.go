package models

import "time"

// Message is a note from the teacher to a class or a single student.
// A nil StudentID means the message addresses the whole class.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	StudentID   *string   `db:"student_id" json:"student_id"`
	Text        string    `db:"text" json:"text"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}
