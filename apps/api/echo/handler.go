package echoapi

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/policy"
	"github.com/trezcool/schoolsys/core/user"
)

// handler holds what both the HTML pages & the JSON API need.
// Each operation goes through the same load & authorize helpers on either surface.
type handler struct {
	conf        *core.Config
	logger      core.Logger
	validate    *validator.Validate
	translator  ut.Translator
	authn       *auth.Authenticator
	authz       policy.Authorizer
	users       *user.Service
	courses     *course.Service
	assignments *assignment.Service
}

func (h *handler) authorize(ctx echo.Context, op policy.Operation, res *policy.Resource) (*auth.Identity, error) {
	id := contextIdentity(ctx)
	if err := h.authz.Authorize(id, op, res); err != nil {
		return nil, err
	}
	return id, nil
}

// pathID returns the `:id` path param; malformed IDs cannot match any record.
func pathID(ctx echo.Context) (string, error) {
	id := ctx.Param("id")
	if err := uuid.Validate(id); err != nil {
		return "", core.ErrNotFound
	}
	return id, nil
}

// courseFor loads the `:id` course & authorizes op on it.
func (h *handler) courseFor(ctx echo.Context, op policy.Operation) (course.Course, *auth.Identity, error) {
	id, err := pathID(ctx)
	if err != nil {
		return course.Course{}, nil, err
	}
	crs, err := h.courses.Get(ctx.Request().Context(), id)
	if err != nil {
		return course.Course{}, nil, errors.Wrap(err, "finding course")
	}
	ident, err := h.authorize(ctx, op, policy.CourseResource(crs))
	if err != nil {
		return course.Course{}, nil, err
	}
	return crs, ident, nil
}

// assignmentFor loads the `:id` assignment with its course & authorizes op on it.
func (h *handler) assignmentFor(ctx echo.Context, op policy.Operation) (assignment.Assignment, *auth.Identity, error) {
	id, err := pathID(ctx)
	if err != nil {
		return assignment.Assignment{}, nil, err
	}
	c := ctx.Request().Context()
	asgmt, err := h.assignments.Get(c, id)
	if err != nil {
		return assignment.Assignment{}, nil, errors.Wrap(err, "finding assignment")
	}
	crs, err := h.courses.Get(c, asgmt.CourseID)
	if err != nil {
		return assignment.Assignment{}, nil, errors.Wrap(err, "finding course")
	}
	ident, err := h.authorize(ctx, op, policy.AssignmentResource(asgmt, crs))
	if err != nil {
		return assignment.Assignment{}, nil, err
	}
	return asgmt, ident, nil
}

// courseByField loads a course referenced from a request body.
func (h *handler) courseByField(ctx echo.Context, field, id string) (course.Course, error) {
	notFound := core.NewValidationError(nil, core.FieldError{Field: field, Error: "course not found"})
	if uuid.Validate(id) != nil {
		return course.Course{}, notFound
	}
	crs, err := h.courses.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return course.Course{}, notFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return crs, nil
}

// listOwnAssignments returns the teacher's assignments or the student's enrolled courses' ones.
func (h *handler) listOwnAssignments(ctx echo.Context) ([]assignment.Assignment, error) {
	id := contextIdentity(ctx)
	c := ctx.Request().Context()
	if id.HasRole(user.RoleTeacher) {
		if _, err := h.authorize(ctx, policy.ListOwnAssignments, nil); err != nil {
			return nil, err
		}
		return h.assignments.ListByTeacher(c, id.UserID)
	}
	if _, err := h.authorize(ctx, policy.ViewOwnAssignments, nil); err != nil {
		return nil, err
	}
	return h.assignments.ListForStudent(c, id.UserID)
}

func (h *handler) listOwnSubmissions(ctx echo.Context) ([]assignment.Submission, error) {
	id, err := h.authorize(ctx, policy.ViewOwnSubmissions, nil)
	if err != nil {
		return nil, err
	}
	subs, err := h.assignments.ListStudentSubmissions(ctx.Request().Context(), id.UserID)
	return subs, errors.Wrap(err, "listing submissions")
}
