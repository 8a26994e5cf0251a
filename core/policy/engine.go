// Package policy decides which identity may perform which operation on which resource.
package policy

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
)

type Operation string

// Operations
const (
	ViewPrincipalDashboard Operation = "view_principal_dashboard"
	ViewTeacherDashboard   Operation = "view_teacher_dashboard"
	ViewStudentDashboard   Operation = "view_student_dashboard"

	CreateCourse Operation = "create_course"
	EditCourse   Operation = "edit_course"
	DeleteCourse Operation = "delete_course"
	EnrollCourse Operation = "enroll_course"

	SetAssignment      Operation = "set_assignment"
	DeleteAssignment   Operation = "delete_assignment"
	ListOwnAssignments Operation = "list_own_assignments" // teacher
	ViewOwnAssignments Operation = "view_own_assignments" // student
	ViewSubmissions    Operation = "view_submissions"
	SubmitAssignment   Operation = "submit_assignment"
	ViewOwnSubmissions Operation = "view_own_submissions"

	Register     Operation = "register"
	Login        Operation = "login"
	RefreshToken Operation = "refresh_token"
	Logout       Operation = "logout"
)

// Resource holds the ownership facts the rules inspect.
type Resource struct {
	PrincipalID string
	TeacherID   string
	StudentIDs  []string
}

func CourseResource(crs course.Course) *Resource {
	res := &Resource{PrincipalID: crs.PrincipalID, StudentIDs: crs.StudentIDs}
	if crs.TeacherID.Valid {
		res.TeacherID = crs.TeacherID.String
	}
	return res
}

// AssignmentResource is owned by the assignment's teacher; its members are the course students.
func AssignmentResource(asgmt assignment.Assignment, crs course.Course) *Resource {
	return &Resource{
		PrincipalID: crs.PrincipalID,
		TeacherID:   asgmt.TeacherID,
		StudentIDs:  crs.StudentIDs,
	}
}

// Authorizer allows an operation by returning nil, or denies it with an error
// whose cause is core.ErrUnauthorized (no identity) or core.ErrForbidden.
type Authorizer interface {
	Authorize(id *auth.Identity, op Operation, res *Resource) error
}

type check func(id *auth.Identity, res *Resource) (reason string)

type rule struct {
	op    Operation
	roles []user.Role // nil: anyone, including anonymous
	check check
}

var (
	anyone        []user.Role
	authenticated = user.AllRoles
	principal     = []user.Role{user.RolePrincipal}
	teacher       = []user.Role{user.RoleTeacher}
	student       = []user.Role{user.RoleStudent}

	// rules is evaluated top to bottom; the first rule matching the operation decides.
	rules = []rule{
		{op: ViewPrincipalDashboard, roles: principal, check: optional(ownedByPrincipal)},
		{op: ViewTeacherDashboard, roles: teacher, check: optional(taughtByTeacher)},
		{op: ViewStudentDashboard, roles: student, check: optional(enrolledStudent)},

		{op: CreateCourse, roles: principal},
		{op: EditCourse, roles: principal, check: ownedByPrincipal},
		{op: DeleteCourse, roles: principal, check: ownedByPrincipal},
		{op: EnrollCourse, roles: student, check: exists},

		{op: SetAssignment, roles: teacher, check: taughtByTeacher},
		{op: DeleteAssignment, roles: teacher, check: taughtByTeacher},
		{op: ListOwnAssignments, roles: teacher},
		{op: ViewOwnAssignments, roles: student},
		{op: ViewSubmissions, roles: teacher, check: taughtByTeacher},
		{op: SubmitAssignment, roles: student, check: enrolledStudent},
		{op: ViewOwnSubmissions, roles: student},

		{op: Register, roles: anyone},
		{op: Login, roles: anyone},
		{op: RefreshToken, roles: anyone},
		{op: Logout, roles: authenticated},
	}
)

// Engine is the stateless rules table. The zero value is ready to use.
type Engine struct{}

var _ Authorizer = Engine{}

func (Engine) Authorize(id *auth.Identity, op Operation, res *Resource) error {
	for _, r := range rules {
		if r.op != op {
			continue
		}
		if r.roles == nil {
			return nil
		}
		if id == nil {
			return errors.Wrap(core.ErrUnauthorized, string(op))
		}
		if !id.HasRole(r.roles...) {
			return errors.Wrapf(core.ErrForbidden, "%s: requires role %s", op, joinRoles(r.roles))
		}
		if r.check != nil {
			if reason := r.check(id, res); reason != "" {
				return errors.Wrapf(core.ErrForbidden, "%s: %s", op, reason)
			}
		}
		return nil
	}
	return errors.Wrapf(core.ErrForbidden, "%s: unknown operation", op)
}

// Checks

func exists(_ *auth.Identity, res *Resource) string {
	if res == nil {
		return "missing resource"
	}
	return ""
}

func ownedByPrincipal(id *auth.Identity, res *Resource) string {
	if res == nil {
		return "missing resource"
	}
	if !id.Is(res.PrincipalID) {
		return "not the owning principal"
	}
	return ""
}

func taughtByTeacher(id *auth.Identity, res *Resource) string {
	if res == nil {
		return "missing resource"
	}
	if !id.Is(res.TeacherID) {
		return "not the teacher"
	}
	return ""
}

func enrolledStudent(id *auth.Identity, res *Resource) string {
	if res == nil {
		return "missing resource"
	}
	if !core.ContainsString(res.StudentIDs, id.UserID) {
		return "not enrolled"
	}
	return ""
}

// optional skips the check when no resource is given (eg: one's own dashboard).
func optional(c check) check {
	return func(id *auth.Identity, res *Resource) string {
		if res == nil {
			return ""
		}
		return c(id, res)
	}
}

func joinRoles(roles []user.Role) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return strings.Join(names, "|")
}
