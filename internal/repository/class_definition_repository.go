package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/service"
)

// ClassDefinitionRepository reads class definition snapshots from the shared
// platform database. The rows are owned by the course-management module; this
// repository only ever reads them.
type ClassDefinitionRepository struct {
	db *sqlx.DB
}

// NewClassDefinitionRepository constructs the repository.
func NewClassDefinitionRepository(db *sqlx.DB) *ClassDefinitionRepository {
	return &ClassDefinitionRepository{db: db}
}

type classDefinitionRow struct {
	ID            string `db:"id"`
	CourseID      string `db:"course_id"`
	Capacity      int    `db:"capacity"`
	AllowWaitlist bool   `db:"allow_waitlist"`
}

// FindByUUID returns the current snapshot of a class definition.
func (r *ClassDefinitionRepository) FindByUUID(ctx context.Context, id string) (*models.ClassDefinitionSnapshot, error) {
	const query = `SELECT id, course_id, capacity, allow_waitlist FROM class_definitions WHERE id = $1`

	var row classDefinitionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, &service.ClassDefinitionNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("find class definition: %w", err)
	}

	return &models.ClassDefinitionSnapshot{
		ID:            row.ID,
		CourseID:      row.CourseID,
		Capacity:      row.Capacity,
		AllowWaitlist: row.AllowWaitlist,
	}, nil
}
