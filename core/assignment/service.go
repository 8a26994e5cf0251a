package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/course"
)

var (
	// errors
	ErrNotFound = errors.WithMessage(core.ErrNotFound, "assignment")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, asgmt Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		// ListAssignments returns the matching assignments, newest first.
		ListAssignments(ctx context.Context, filter Filter) ([]Assignment, error)
		// DeleteAssignment deletes the assignment along with its submissions.
		DeleteAssignment(ctx context.Context, id string) error

		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		// ListSubmissions returns the matching submissions, newest first.
		ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	}

	Service struct {
		repo     Repository
		courses  *course.Service
		notifier *Notifier
	}
)

// NewService returns an assignment Service. notifier may be nil to disable email notifications.
func NewService(repo Repository, courses *course.Service, notifier *Notifier) *Service {
	return &Service{repo: repo, courses: courses, notifier: notifier}
}

// Create sets an assignment on the course, on behalf of the teacher.
func (svc *Service) Create(ctx context.Context, teacherID string, crs course.Course, na NewAssignment) (Assignment, error) {
	asgmt := Assignment{
		ID:          uuid.NewString(),
		Title:       na.Title,
		Description: na.Description,
		CourseID:    crs.ID,
		TeacherID:   teacherID,
		CreatedAt:   time.Now().UTC(),
	}
	asgmt, err := svc.repo.CreateAssignment(ctx, asgmt)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}
	if svc.notifier != nil {
		svc.notifier.AssignmentCreated(ctx, crs, asgmt)
	}
	return asgmt, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Assignment, error) {
	return svc.repo.ListAssignments(ctx, Filter{TeacherID: teacherID})
}

// ListForStudent only returns the assignments of the courses the student is enrolled in.
func (svc *Service) ListForStudent(ctx context.Context, studentID string) ([]Assignment, error) {
	courses, err := svc.courses.List(ctx, course.Filter{StudentID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "listing enrolled courses")
	}
	courseIDs := make([]string, 0, len(courses))
	for _, crs := range courses {
		courseIDs = append(courseIDs, crs.ID)
	}
	if len(courseIDs) == 0 {
		return []Assignment{}, nil
	}
	return svc.repo.ListAssignments(ctx, Filter{CourseIDs: courseIDs})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return errors.Wrap(svc.repo.DeleteAssignment(ctx, id), "deleting assignment")
}

// Submit records the student's answer. Every attempt is kept.
func (svc *Service) Submit(ctx context.Context, studentID string, asgmt Assignment, ns NewSubmission) (Submission, error) {
	sub := Submission{
		ID:           uuid.NewString(),
		AssignmentID: asgmt.ID,
		StudentID:    studentID,
		Answer:       ns.Answer,
		SubmittedAt:  time.Now().UTC(),
	}
	sub, err := svc.repo.CreateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	if svc.notifier != nil {
		svc.notifier.SubmissionCreated(ctx, asgmt, sub)
	}
	return sub, nil
}

func (svc *Service) ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	return svc.repo.ListSubmissions(ctx, SubmissionFilter{AssignmentID: assignmentID})
}

func (svc *Service) ListStudentSubmissions(ctx context.Context, studentID string) ([]Submission, error) {
	return svc.repo.ListSubmissions(ctx, SubmissionFilter{StudentID: studentID})
}
