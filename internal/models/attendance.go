package models

// AttendanceTotals counts records per attendance category across a set of
// lessons. Categories with a zero count are omitted when serialised.
type AttendanceTotals map[AttendanceStatus]int

// StudentAttendance is the per-student breakdown over the same window.
// Zero counts stay present here so every roster student renders a row.
type StudentAttendance struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Excused   int    `json:"excused"`
	Total     int    `json:"total"`
}

// AttendanceSummary aggregates a class's attendance over a date window.
type AttendanceSummary struct {
	ClassID     string              `json:"class_id"`
	LessonCount int                 `json:"lesson_count"`
	Totals      AttendanceTotals    `json:"totals"`
	Students    []StudentAttendance `json:"students"`
}
