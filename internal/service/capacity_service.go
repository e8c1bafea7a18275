package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campushq/timetable-api/internal/models"
	appErrors "github.com/campushq/timetable-api/pkg/errors"
)

type occupancyCounter interface {
	CountOccupying(ctx context.Context, exec sqlx.ExtContext, instanceID string) (int, error)
}

type instanceReader interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledInstance, error)
	ListActiveByClassDefinition(ctx context.Context, classDefID string) ([]models.ScheduledInstance, error)
}

// CapacityService derives occupancy from the store on every call. There is no
// in-memory occupancy state that could drift from committed rows; write paths
// re-count inside their own transactions.
type CapacityService struct {
	enrollments occupancyCounter
	instances   instanceReader
	classDefs   ClassDefinitionLookup
	logger      *zap.Logger
}

// NewCapacityService constructs CapacityService.
func NewCapacityService(enrollments occupancyCounter, instances instanceReader, classDefs ClassDefinitionLookup, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{enrollments: enrollments, instances: instances, classDefs: classDefs, logger: logger}
}

// EnrollmentCount returns the live occupancy of an instance: enrollments in
// ENROLLED or ATTENDED. Cancelled and absent enrollments do not hold a seat.
func (s *CapacityService) EnrollmentCount(ctx context.Context, instanceID string) (int, error) {
	count, err := s.enrollments.CountOccupying(ctx, nil, instanceID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// HasCapacity reports whether the instance can admit one more student under
// its class definition's seat limit. A zero capacity means unlimited.
func (s *CapacityService) HasCapacity(ctx context.Context, instanceID string) (bool, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "scheduled instance not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduled instance")
	}
	snapshot, err := s.lookupClassDefinition(ctx, instance.ClassDefinitionID)
	if err != nil {
		return false, err
	}
	if snapshot.Unlimited() {
		return true, nil
	}
	count, err := s.EnrollmentCount(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return count < snapshot.Capacity, nil
}

// HasCapacityForClassDefinition reports whether any scheduled instance of the
// class definition has a free seat. Instances of one class are
// interchangeable sessions, so one open seat anywhere admits the student at
// the class-definition level. A class with no scheduled instances has no
// capacity.
func (s *CapacityService) HasCapacityForClassDefinition(ctx context.Context, classDefID string) (bool, error) {
	snapshot, err := s.lookupClassDefinition(ctx, classDefID)
	if err != nil {
		return false, err
	}
	instances, err := s.instances.ListActiveByClassDefinition(ctx, classDefID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class instances")
	}
	if len(instances) == 0 {
		return false, nil
	}
	if snapshot.Unlimited() {
		return true, nil
	}
	for _, instance := range instances {
		count, err := s.EnrollmentCount(ctx, instance.ID)
		if err != nil {
			return false, err
		}
		if count < snapshot.Capacity {
			return true, nil
		}
	}
	return false, nil
}

func (s *CapacityService) lookupClassDefinition(ctx context.Context, classDefID string) (*models.ClassDefinitionSnapshot, error) {
	snapshot, err := s.classDefs.FindByUUID(ctx, classDefID)
	if err != nil {
		var notFound *ClassDefinitionNotFoundError
		if errors.As(err, &notFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class definition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class definition")
	}
	return snapshot, nil
}
