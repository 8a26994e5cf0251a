package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
)

var (
	// errors
	ErrNotFound       = errors.WithMessage(core.ErrNotFound, "course")
	ErrCourseIDExists = errors.New("a course with that course id already exists")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrCourseIDExists when courseID is taken by a course not in excludedIDs.
		CheckUniqueness(ctx context.Context, courseID string, excludedIDs ...string) error
		// CreateCourse inserts the course along with its students.
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		ListCourses(ctx context.Context, filter Filter) ([]Course, error)
		// UpdateCourse saves the course fields & replaces its students set.
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		// AddStudent adds the student to the course students set; it is a no-op if already enrolled.
		AddStudent(ctx context.Context, id, studentID string) (Course, error)
		// DeleteCourse deletes the course along with its assignments & their submissions.
		DeleteCourse(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
		tx   core.Transactor
	}
)

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

func (svc *Service) CheckUniqueness(ctx context.Context, courseID string, exclIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, courseID, exclIDs...); err != nil {
		return uniquenessError(err)
	}
	return nil
}

func uniquenessError(err error) error {
	if err == ErrCourseIDExists {
		return core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
	}
	return errors.Wrap(err, "checking uniqueness")
}

// Create creates a course owned by the principal.
func (svc *Service) Create(ctx context.Context, principalID string, cd CourseData) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		ID:          uuid.NewString(),
		CourseID:    cd.CourseID,
		Name:        cd.Name,
		TeacherID:   optionalID(cd.TeacherID),
		PrincipalID: principalID,
		StudentIDs:  cd.StudentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if crs.StudentIDs == nil {
		crs.StudentIDs = []string{}
	}

	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		created, err := svc.repo.CreateCourse(ctx, crs)
		if err != nil {
			if err == ErrCourseIDExists {
				return uniquenessError(err)
			}
			return errors.Wrap(err, "creating course")
		}
		crs = created
		return nil
	})
	if err != nil {
		return Course{}, err
	}
	return crs, nil
}

// Update replaces the editable fields of the course; its principal never changes.
func (svc *Service) Update(ctx context.Context, crs Course, cd CourseData) (Course, error) {
	crs.CourseID = cd.CourseID
	crs.Name = cd.Name
	crs.TeacherID = optionalID(cd.TeacherID)
	crs.StudentIDs = cd.StudentIDs
	if crs.StudentIDs == nil {
		crs.StudentIDs = []string{}
	}
	crs.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateCourse(ctx, crs)
	if err != nil {
		if err == ErrCourseIDExists {
			return Course{}, uniquenessError(err)
		}
		return Course{}, errors.Wrap(err, "updating course")
	}
	return updated, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter Filter) ([]Course, error) {
	return svc.repo.ListCourses(ctx, filter)
}

// Enroll adds the student to the course. Enrollment is add-only and idempotent.
func (svc *Service) Enroll(ctx context.Context, id, studentID string) (Course, error) {
	crs, err := svc.repo.AddStudent(ctx, id, studentID)
	return crs, errors.Wrap(err, "adding student")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return errors.Wrap(svc.repo.DeleteCourse(ctx, id), "deleting course")
}

func optionalID(id string) null.String {
	if id == "" {
		return null.String{}
	}
	return null.StringFrom(id)
}
