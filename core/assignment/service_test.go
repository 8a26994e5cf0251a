package assignment_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/services/email"
	"github.com/trezcool/schoolsys/services/logger"
	"github.com/trezcool/schoolsys/storage/database/inmem"
	"github.com/trezcool/schoolsys/tests"
)

var testLogger core.Logger

func TestMain(m *testing.M) {
	logger := logsvc.NewRollbarLogger(io.Discard, "TEST", &core.Config{TestMode: true})
	logger.Enable(false)
	core.ParseEmailTemplates(logger)
	testLogger = logger
	os.Exit(m.Run())
}

type fixture struct {
	users   user.Repository
	courses course.Repository
	asgmts  assignment.Repository
	svc     *assignment.Service
	mailer  *emailsvc.ConsoleServiceMock

	teacher   user.User
	student1  user.User
	student2  user.User
	inactive  user.User
	noEmail   user.User
	math      course.Course
	physics   course.Course
	fractions assignment.Assignment
}

func setup(t *testing.T) fixture {
	db := inmemdb.NewDB()
	f := fixture{
		users:   inmemdb.NewUserRepository(db),
		courses: inmemdb.NewCourseRepository(db),
		asgmts:  inmemdb.NewAssignmentRepository(db),
		mailer:  emailsvc.NewConsoleServiceMock(&core.Config{AppName: "SchoolSys"}, testLogger),
	}
	tx := inmemdb.NewTransactor(db)
	usrSvc := user.NewService(f.users, tx)
	f.svc = assignment.NewService(f.asgmts, course.NewService(f.courses, tx), assignment.NewNotifier(usrSvc, f.mailer, testLogger))

	principal := testutil.CreateUser(t, f.users, "principal", "", user.RolePrincipal, true)
	f.teacher = testutil.CreateUser(t, f.users, "teacher", "", user.RoleTeacher, true)
	f.student1 = testutil.CreateUser(t, f.users, "student1", "", user.RoleStudent, true)
	f.student2 = testutil.CreateUser(t, f.users, "student2", "", user.RoleStudent, true)
	f.inactive = testutil.CreateUser(t, f.users, "inactive", "", user.RoleStudent, false)

	f.noEmail = testutil.CreateUser(t, f.users, "noemail", "", user.RoleStudent, true)
	f.noEmail.Email = ""
	f.noEmail, _ = f.users.UpdateUser(context.Background(), f.noEmail)

	f.math = testutil.CreateCourse(t, f.courses, "MATH101", principal, &f.teacher, f.student1, f.inactive, f.noEmail)
	f.physics = testutil.CreateCourse(t, f.courses, "PHYS101", principal, &f.teacher, f.student2)
	f.fractions = testutil.CreateAssignment(t, f.asgmts, "Fractions", f.math, f.teacher, time.Now().Add(-time.Hour))
	return f
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	asgmt, err := f.svc.Create(ctx, f.teacher.ID, f.math, assignment.NewAssignment{Title: "Equations", Description: "Solve x"})
	require.NoError(t, err)
	assert.Equal(t, f.math.ID, asgmt.CourseID)
	assert.Equal(t, f.teacher.ID, asgmt.TeacherID)

	got, err := f.svc.Get(ctx, asgmt.ID)
	require.NoError(t, err)
	assert.Equal(t, asgmt.Title, got.Title)

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, f.student1.Email, sent[0].To[0].Address)
	assert.Equal(t, "New assignment: Equations", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Equations")
	assert.Contains(t, sent[0].TextContent, "MATH101")

	t.Run("unknown course", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.teacher.ID, course.Course{ID: "unknown"}, assignment.NewAssignment{Title: "X", Description: "X"})
		assert.True(t, core.IsConstraintViolation(err))
	})

	t.Run("without notifier", func(t *testing.T) {
		svc := assignment.NewService(f.asgmts, nil, nil)
		_, err := svc.Create(ctx, f.teacher.ID, f.math, assignment.NewAssignment{Title: "Silent", Description: "No mail"})
		require.NoError(t, err)
		assert.Len(t, f.mailer.SentMessages(), 1)
	})
}

func TestService_ListForStudent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	gravity := testutil.CreateAssignment(t, f.asgmts, "Gravity", f.physics, f.teacher)
	equations := testutil.CreateAssignment(t, f.asgmts, "Equations", f.math, f.teacher)
	outsider := testutil.CreateUser(t, f.users, "outsider", "", user.RoleStudent, true)

	tests := []struct {
		name      string
		studentID string
		want      []string
	}{
		{name: "enrolled in math", studentID: f.student1.ID, want: []string{equations.ID, f.fractions.ID}},
		{name: "enrolled in physics", studentID: f.student2.ID, want: []string{gravity.ID}},
		{name: "not enrolled", studentID: outsider.ID, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asgmts, err := f.svc.ListForStudent(ctx, tt.studentID)
			require.NoError(t, err)
			ids := make([]string, 0, len(asgmts))
			for _, a := range asgmts {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	byTeacher, err := f.svc.ListByTeacher(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Len(t, byTeacher, 3)
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first, err := f.svc.Submit(ctx, f.student1.ID, f.fractions, assignment.NewSubmission{Answer: "1/2"})
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, f.student1.ID, f.fractions, assignment.NewSubmission{Answer: "2/4"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	subs, err := f.svc.ListSubmissions(ctx, f.fractions.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, second.ID, subs[0].ID)

	own, err := f.svc.ListStudentSubmissions(ctx, f.student1.ID)
	require.NoError(t, err)
	assert.Len(t, own, 2)
	own, err = f.svc.ListStudentSubmissions(ctx, f.student2.ID)
	require.NoError(t, err)
	assert.Empty(t, own)

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, f.teacher.Email, sent[0].To[0].Address)
	assert.Equal(t, "New submission: Fractions", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, f.student1.Username)

	t.Run("not a student", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, f.teacher.ID, f.fractions, assignment.NewSubmission{Answer: "cheat"})
		assert.True(t, core.IsConstraintViolation(err))
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateSubmission(t, f.asgmts, f.fractions, f.student1, "1/2")

	require.NoError(t, f.svc.Delete(ctx, f.fractions.ID))

	_, err := f.svc.Get(ctx, f.fractions.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))
	subs, err := f.svc.ListStudentSubmissions(ctx, f.student1.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	err = f.svc.Delete(ctx, f.fractions.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))
}

func TestFilter_Match(t *testing.T) {
	asgmt := assignment.Assignment{ID: "a1", CourseID: "c1", TeacherID: "t1"}

	tests := []struct {
		name   string
		filter assignment.Filter
		want   bool
	}{
		{name: "empty filter", want: true},
		{name: "teacher", filter: assignment.Filter{TeacherID: "t1"}, want: true},
		{name: "other teacher", filter: assignment.Filter{TeacherID: "t2"}},
		{name: "courses", filter: assignment.Filter{CourseIDs: []string{"c0", "c1"}}, want: true},
		{name: "other courses", filter: assignment.Filter{CourseIDs: []string{"c0"}}},
		{name: "no course", filter: assignment.Filter{CourseIDs: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(asgmt))
		})
	}

	sub := assignment.Submission{AssignmentID: "a1", StudentID: "s1"}
	assert.True(t, assignment.SubmissionFilter{AssignmentID: "a1", StudentID: "s1"}.Match(sub))
	assert.False(t, assignment.SubmissionFilter{StudentID: "s2"}.Match(sub))
}
