package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
	"github.com/campushq/timetable-api/pkg/export"
)

// ExportService renders timetables as downloadable documents.
type ExportService struct {
	queries *ScheduleQueryService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(queries *ScheduleQueryService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		queries: queries,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

var timetableHeaders = []string{"Date", "Start", "End", "Status", "Location", "Class Definition"}

func timetableDataset(instances []models.ScheduledInstance) export.Dataset {
	rows := make([]map[string]string, 0, len(instances))
	for _, instance := range instances {
		rows = append(rows, map[string]string{
			"Date":             instance.StartAt.UTC().Format("2006-01-02"),
			"Start":            instance.StartAt.UTC().Format("15:04"),
			"End":              instance.EndAt.UTC().Format("15:04"),
			"Status":           string(instance.Status),
			"Location":         instance.Location.Name,
			"Class Definition": instance.ClassDefinitionID,
		})
	}
	return export.Dataset{Headers: timetableHeaders, Rows: rows}
}

// InstructorTimetableCSV renders the instructor's schedule as CSV.
func (s *ExportService) InstructorTimetableCSV(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error) {
	instances, err := s.queries.ForInstructor(ctx, instructorID, from, to)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(timetableDataset(instances))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, nil
}

// InstructorTimetablePDF renders the instructor's schedule as a landscape PDF.
func (s *ExportService) InstructorTimetablePDF(ctx context.Context, instructorID string, from, to time.Time) ([]byte, error) {
	instances, err := s.queries.ForInstructor(ctx, instructorID, from, to)
	if err != nil {
		return nil, err
	}
	payload, err := s.pdf.Render(timetableDataset(instances), export.PDFOptions{
		Title:     "Instructor Timetable",
		Subtitle:  fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
		Landscape: true,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

// StudentTimetableCSV renders the student's booked sessions as CSV.
func (s *ExportService) StudentTimetableCSV(ctx context.Context, studentID string, from, to time.Time) ([]byte, error) {
	entries, err := s.queries.CalendarForStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	instances := make([]models.ScheduledInstance, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind == models.CalendarEntryScheduledInstance && entry.Instance != nil {
			instances = append(instances, *entry.Instance)
		}
	}
	payload, err := s.csv.Render(timetableDataset(instances))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, nil
}
