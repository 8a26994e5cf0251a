package policy

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/services/logger"
)

var (
	principal1 = &auth.Identity{UserID: "p1", Username: "principal1", Role: user.RolePrincipal}
	principal2 = &auth.Identity{UserID: "p2", Username: "principal2", Role: user.RolePrincipal}
	teacher1   = &auth.Identity{UserID: "t1", Username: "teacher1", Role: user.RoleTeacher}
	teacher2   = &auth.Identity{UserID: "t2", Username: "teacher2", Role: user.RoleTeacher}
	student1   = &auth.Identity{UserID: "s1", Username: "student1", Role: user.RoleStudent}
	student2   = &auth.Identity{UserID: "s2", Username: "student2", Role: user.RoleStudent}

	course1 = course.Course{ID: "c1", PrincipalID: "p1", TeacherID: null.StringFrom("t1"), StudentIDs: []string{"s1"}}
	orphan  = course.Course{ID: "c2", PrincipalID: "p1", StudentIDs: []string{}}
	asgmt1  = assignment.Assignment{ID: "a1", CourseID: "c1", TeacherID: "t1"}
)

func TestEngine_Authorize(t *testing.T) {
	crsRes := CourseResource(course1)
	asgmtRes := AssignmentResource(asgmt1, course1)

	tests := []struct {
		name    string
		id      *auth.Identity
		op      Operation
		res     *Resource
		wantErr error
	}{
		// dashboards
		{name: "principal dashboard", id: principal1, op: ViewPrincipalDashboard},
		{name: "principal dashboard, anonymous", op: ViewPrincipalDashboard, wantErr: core.ErrUnauthorized},
		{name: "principal dashboard, teacher", id: teacher1, op: ViewPrincipalDashboard, wantErr: core.ErrForbidden},
		{name: "teacher dashboard", id: teacher1, op: ViewTeacherDashboard},
		{name: "teacher dashboard, student", id: student1, op: ViewTeacherDashboard, wantErr: core.ErrForbidden},
		{name: "student dashboard", id: student1, op: ViewStudentDashboard},
		{name: "student dashboard, principal", id: principal1, op: ViewStudentDashboard, wantErr: core.ErrForbidden},

		// courses
		{name: "create course", id: principal2, op: CreateCourse},
		{name: "create course, teacher", id: teacher1, op: CreateCourse, wantErr: core.ErrForbidden},
		{name: "edit own course", id: principal1, op: EditCourse, res: crsRes},
		{name: "edit other's course", id: principal2, op: EditCourse, res: crsRes, wantErr: core.ErrForbidden},
		{name: "edit course without resource", id: principal1, op: EditCourse, wantErr: core.ErrForbidden},
		{name: "delete own course", id: principal1, op: DeleteCourse, res: crsRes},
		{name: "delete other's course", id: principal2, op: DeleteCourse, res: crsRes, wantErr: core.ErrForbidden},
		{name: "enroll", id: student2, op: EnrollCourse, res: crsRes},
		{name: "enroll, already enrolled", id: student1, op: EnrollCourse, res: crsRes},
		{name: "enroll, missing course", id: student2, op: EnrollCourse, wantErr: core.ErrForbidden},
		{name: "enroll, teacher", id: teacher1, op: EnrollCourse, res: crsRes, wantErr: core.ErrForbidden},

		// assignments
		{name: "set assignment", id: teacher1, op: SetAssignment, res: crsRes},
		{name: "set assignment, not the teacher", id: teacher2, op: SetAssignment, res: crsRes, wantErr: core.ErrForbidden},
		{name: "set assignment, course without teacher", id: teacher1, op: SetAssignment, res: CourseResource(orphan), wantErr: core.ErrForbidden},
		{name: "set assignment, principal", id: principal1, op: SetAssignment, res: crsRes, wantErr: core.ErrForbidden},
		{name: "delete assignment", id: teacher1, op: DeleteAssignment, res: asgmtRes},
		{name: "delete assignment, not the teacher", id: teacher2, op: DeleteAssignment, res: asgmtRes, wantErr: core.ErrForbidden},
		{name: "list own assignments", id: teacher2, op: ListOwnAssignments},
		{name: "list own assignments, student", id: student1, op: ListOwnAssignments, wantErr: core.ErrForbidden},
		{name: "view own assignments", id: student2, op: ViewOwnAssignments},
		{name: "view own assignments, anonymous", op: ViewOwnAssignments, wantErr: core.ErrUnauthorized},
		{name: "view submissions", id: teacher1, op: ViewSubmissions, res: asgmtRes},
		{name: "view submissions, not the teacher", id: teacher2, op: ViewSubmissions, res: asgmtRes, wantErr: core.ErrForbidden},
		{name: "view submissions, student", id: student1, op: ViewSubmissions, res: asgmtRes, wantErr: core.ErrForbidden},
		{name: "submit", id: student1, op: SubmitAssignment, res: asgmtRes},
		{name: "submit, not enrolled", id: student2, op: SubmitAssignment, res: asgmtRes, wantErr: core.ErrForbidden},
		{name: "submit, teacher", id: teacher1, op: SubmitAssignment, res: asgmtRes, wantErr: core.ErrForbidden},
		{name: "view own submissions", id: student2, op: ViewOwnSubmissions},

		// auth
		{name: "register, anonymous", op: Register},
		{name: "login, anonymous", op: Login},
		{name: "login, authenticated", id: teacher1, op: Login},
		{name: "refresh token, anonymous", op: RefreshToken},
		{name: "logout", id: student1, op: Logout},
		{name: "logout, anonymous", op: Logout, wantErr: core.ErrUnauthorized},

		{name: "unknown operation", id: principal1, op: Operation("drop_database"), wantErr: core.ErrForbidden},
		{name: "unknown operation, anonymous", op: Operation("drop_database"), wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Engine{}.Authorize(tt.id, tt.op, tt.res)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestEngine_firstMatchDecides(t *testing.T) {
	saved := rules
	t.Cleanup(func() { rules = saved })

	rules = []rule{
		{op: CreateCourse, roles: teacher},
		{op: CreateCourse, roles: principal},
	}
	assert.NoError(t, Engine{}.Authorize(teacher1, CreateCourse, nil))
	assert.Equal(t, core.ErrForbidden, errors.Cause(Engine{}.Authorize(principal1, CreateCourse, nil)))
}

func TestEngine_everyOperationHasARule(t *testing.T) {
	ops := []Operation{
		ViewPrincipalDashboard, ViewTeacherDashboard, ViewStudentDashboard,
		CreateCourse, EditCourse, DeleteCourse, EnrollCourse,
		SetAssignment, DeleteAssignment, ListOwnAssignments, ViewOwnAssignments,
		ViewSubmissions, SubmitAssignment, ViewOwnSubmissions,
		Register, Login, RefreshToken, Logout,
	}
	for _, op := range ops {
		found := false
		for _, r := range rules {
			if r.op == op {
				found = true
				break
			}
		}
		assert.True(t, found, "no rule for %s", op)
	}
}

func TestInstrumented_Authorize(t *testing.T) {
	logger := logsvc.NewRollbarLogger(io.Discard, "TEST", &core.Config{TestMode: true})
	logger.Enable(false)
	authz := NewInstrumented(Engine{}, logger)

	allowed := DecisionsTotal.WithLabelValues(string(EditCourse), "principal", decisionAllow)
	denied := DecisionsTotal.WithLabelValues(string(EditCourse), "principal", decisionForbidden)
	anonymous := DecisionsTotal.WithLabelValues(string(EditCourse), roleAnonymous, decisionUnauthorized)
	allowedBefore, deniedBefore, anonBefore := testutil.ToFloat64(allowed), testutil.ToFloat64(denied), testutil.ToFloat64(anonymous)

	res := CourseResource(course1)
	assert.NoError(t, authz.Authorize(principal1, EditCourse, res))
	assert.Equal(t, core.ErrForbidden, errors.Cause(authz.Authorize(principal2, EditCourse, res)))
	assert.Equal(t, core.ErrUnauthorized, errors.Cause(authz.Authorize(nil, EditCourse, res)))

	assert.Equal(t, allowedBefore+1, testutil.ToFloat64(allowed))
	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(denied))
	assert.Equal(t, anonBefore+1, testutil.ToFloat64(anonymous))
}
