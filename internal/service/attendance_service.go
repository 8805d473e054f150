package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
	"github.com/dkenges/zhurnal-api/pkg/export"
)

type attendanceLessonLister interface {
	ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error)
}

type attendanceStudentLister interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Student, error)
}

type attendanceClassFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// AttendanceService computes attendance statistics over a class's lessons
// and renders them for export. Summaries are cached per class and window.
type AttendanceService struct {
	lessonRepo  attendanceLessonLister
	studentRepo attendanceStudentLister
	classRepo   attendanceClassFinder
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(lessonRepo attendanceLessonLister, studentRepo attendanceStudentLister, classRepo attendanceClassFinder, cache *CacheService, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		lessonRepo:  lessonRepo,
		studentRepo: studentRepo,
		classRepo:   classRepo,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// Summary aggregates attendance for a class over the optional date window.
// One pass over all records buckets them by attendance value; totals omit
// zero categories while the per-student breakdown keeps zeros so every
// roster student appears.
func (s *AttendanceService) Summary(ctx context.Context, teacherID, classID, start, end string) (*models.AttendanceSummary, error) {
	rng, err := parseLessonRange(start, end)
	if err != nil {
		return nil, err
	}

	if _, err := s.classRepo.FindOwned(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	cacheKey := fmt.Sprintf("attendance:summary:%s:%s:%s", classID, start, end)
	if s.cache.Enabled() {
		var cached models.AttendanceSummary
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	lessons, err := s.lessonRepo.ListForClass(ctx, classID, teacherID, rng)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}
	students, err := s.studentRepo.ListByClass(ctx, classID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	summary := aggregateAttendance(classID, lessons, students)

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, summary, 0); err != nil {
			s.logger.Warn("failed to cache attendance summary", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return summary, nil
}

// Export renders the summary as CSV or PDF bytes plus a content type.
func (s *AttendanceService) Export(ctx context.Context, teacherID, classID, start, end, format string) ([]byte, string, error) {
	summary, err := s.Summary(ctx, teacherID, classID, start, end)
	if err != nil {
		return nil, "", err
	}

	dataset := attendanceDataset(summary)
	switch format {
	case "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Attendance Summary")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func aggregateAttendance(classID string, lessons []models.LessonWithRecords, students []models.Student) *models.AttendanceSummary {
	perStudent := make(map[string]*models.StudentAttendance, len(students))
	order := make([]string, 0, len(students))
	for _, student := range students {
		perStudent[student.ID] = &models.StudentAttendance{
			StudentID: student.ID,
			FirstName: student.FirstName,
			LastName:  student.LastName,
		}
		order = append(order, student.ID)
	}

	totals := models.AttendanceTotals{}
	for _, lesson := range lessons {
		for _, record := range lesson.Records {
			totals[record.Attendance]++
			row, ok := perStudent[record.StudentID]
			if !ok {
				// Frozen record for a student no longer on the roster.
				continue
			}
			switch record.Attendance {
			case models.AttendancePresent:
				row.Present++
			case models.AttendanceAbsent:
				row.Absent++
			case models.AttendanceExcused:
				row.Excused++
			}
			row.Total++
		}
	}

	rows := make([]models.StudentAttendance, 0, len(order))
	for _, id := range order {
		rows = append(rows, *perStudent[id])
	}

	return &models.AttendanceSummary{
		ClassID:     classID,
		LessonCount: len(lessons),
		Totals:      totals,
		Students:    rows,
	}
}

func attendanceDataset(summary *models.AttendanceSummary) export.Dataset {
	headers := []string{"Student", "Present", "Absent", "Excused", "Total"}
	rows := make([]map[string]string, 0, len(summary.Students))
	for _, student := range summary.Students {
		rows = append(rows, map[string]string{
			"Student": student.LastName + " " + student.FirstName,
			"Present": strconv.Itoa(student.Present),
			"Absent":  strconv.Itoa(student.Absent),
			"Excused": strconv.Itoa(student.Excused),
			"Total":   strconv.Itoa(student.Total),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
