package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/tests"
)

type repos struct {
	db    *DB
	users user.Repository
	crs   course.Repository
	asg   assignment.Repository
}

func setup() repos {
	db := NewDB()
	return repos{
		db:    db,
		users: NewUserRepository(db),
		crs:   NewCourseRepository(db),
		asg:   NewAssignmentRepository(db),
	}
}

func Test_transactor_RunInTx(t *testing.T) {
	r := setup()
	tx := NewTransactor(r.db)
	ctx := context.Background()
	boom := errors.New("boom")

	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)

	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		usr := principal
		usr.Email = "changed@test.cd"
		if _, err := r.users.UpdateUser(ctx, usr); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return tx.RunInTx(ctx, func(ctx context.Context) error {
			testutil.CreateUser(t, &ctxRepo{r.users, ctx}, "std", "", user.RoleStudent, true)
			return boom
		})
	})
	assert.Equal(t, boom, err)

	got, err := r.users.GetUserByID(ctx, principal.ID)
	require.NoError(t, err)
	assert.Equal(t, "princip@test.cd", got.Email)

	_, err = r.users.GetUserByUsername(ctx, "std")
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		testutil.CreateUser(t, &ctxRepo{r.users, ctx}, "kept", "", user.RoleStudent, true)
		return nil
	})
	require.NoError(t, err)
	_, err = r.users.GetUserByUsername(ctx, "kept")
	assert.NoError(t, err)
}

// ctxRepo creates users within ctx.
type ctxRepo struct {
	user.Repository
	ctx context.Context
}

func (cr *ctxRepo) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	return cr.Repository.CreateUser(cr.ctx, usr)
}

func Test_userRepository_uniqueness(t *testing.T) {
	r := setup()
	ctx := context.Background()
	usr := testutil.CreateUser(t, r.users, "awe", "", user.RoleStudent, true)

	dup := usr
	dup.ID = "other"
	_, err := r.users.CreateUser(ctx, dup)
	assert.Equal(t, user.ErrUsernameExists, err)

	dup.Username = "other"
	_, err = r.users.CreateUser(ctx, dup)
	assert.Equal(t, user.ErrUniqueIDExists, err)

	assert.NoError(t, r.users.CheckUniqueness(ctx, usr.Username, usr.UniqueID, usr.ID))

	_, err = r.users.UpdateUser(ctx, dup)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	promoted := usr
	promoted.Role = user.RoleTeacher
	_, err = r.users.UpdateUser(ctx, promoted)
	assert.True(t, core.IsConstraintViolation(err))
	got, err := r.users.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, got.Role)
}

func Test_courseRepository_members(t *testing.T) {
	r := setup()
	ctx := context.Background()
	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)
	teacher := testutil.CreateUser(t, r.users, "teacher", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, r.users, "student", "", user.RoleStudent, true)

	newCourse := func(id, principalID, teacherID string, studentIDs ...string) course.Course {
		crs := course.Course{ID: id, CourseID: id, Name: id, PrincipalID: principalID, StudentIDs: studentIDs}
		if teacherID != "" {
			crs.TeacherID = null.StringFrom(teacherID)
		}
		return crs
	}

	tests := []struct {
		name      string
		crs       course.Course
		wantField string
	}{
		{name: "principal is a teacher", crs: newCourse("C1", teacher.ID, ""), wantField: "principal"},
		{name: "unknown principal", crs: newCourse("C2", "lol", ""), wantField: "principal"},
		{name: "teacher is a student", crs: newCourse("C3", principal.ID, student.ID), wantField: "teacher"},
		{name: "student is a teacher", crs: newCourse("C4", principal.ID, teacher.ID, teacher.ID), wantField: "students"},
		{name: "valid", crs: newCourse("C5", principal.ID, teacher.ID, student.ID, student.ID)},
		{name: "valid without teacher", crs: newCourse("C6", principal.ID, "")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			crs, err := r.crs.CreateCourse(ctx, tc.crs)
			if tc.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, core.UniqueStrings(tc.crs.StudentIDs), crs.StudentIDs)
				return
			}
			require.True(t, core.IsConstraintViolation(err), "got %v", err)
			assert.Equal(t, tc.wantField, errors.Cause(err).(*core.ConstraintViolation).Field)
		})
	}

	_, err := r.crs.CreateCourse(ctx, newCourse("C5", principal.ID, ""))
	assert.Equal(t, course.ErrCourseIDExists, err)
}

func Test_courseRepository_AddStudent(t *testing.T) {
	r := setup()
	ctx := context.Background()
	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)
	teacher := testutil.CreateUser(t, r.users, "teacher", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, r.users, "student", "", user.RoleStudent, true)
	crs := testutil.CreateCourse(t, r.crs, "MATH", principal, &teacher)

	got, err := r.crs.AddStudent(ctx, crs.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{student.ID}, got.StudentIDs)

	got, err = r.crs.AddStudent(ctx, crs.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{student.ID}, got.StudentIDs)

	_, err = r.crs.AddStudent(ctx, crs.ID, teacher.ID)
	assert.True(t, core.IsConstraintViolation(err))

	_, err = r.crs.AddStudent(ctx, "lol", student.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	// returned courses do not alias the stored one
	got.StudentIDs[0] = "lol"
	stored, err := r.crs.GetCourseByID(ctx, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{student.ID}, stored.StudentIDs)
}

func Test_courseRepository_ListCourses(t *testing.T) {
	r := setup()
	ctx := context.Background()
	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)
	teacher := testutil.CreateUser(t, r.users, "teacher", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, r.users, "student", "", user.RoleStudent, true)
	bio := testutil.CreateCourse(t, r.crs, "BIO", principal, nil, student)
	math := testutil.CreateCourse(t, r.crs, "MATH", principal, &teacher)
	art := testutil.CreateCourse(t, r.crs, "ART", principal, &teacher, student)

	tests := []struct {
		name   string
		filter course.Filter
		want   []course.Course
	}{
		{name: "all", want: []course.Course{art, bio, math}},
		{name: "by teacher", filter: course.Filter{TeacherID: teacher.ID}, want: []course.Course{art, math}},
		{name: "enrolled", filter: course.Filter{StudentID: student.ID}, want: []course.Course{art, bio}},
		{name: "not enrolled", filter: course.Filter{NotStudentID: student.ID}, want: []course.Course{math}},
		{name: "other principal", filter: course.Filter{PrincipalID: teacher.ID}, want: []course.Course{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.crs.ListCourses(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_DeleteCourse_cascades(t *testing.T) {
	r := setup()
	ctx := context.Background()
	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)
	teacher := testutil.CreateUser(t, r.users, "teacher", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, r.users, "student", "", user.RoleStudent, true)
	crs := testutil.CreateCourse(t, r.crs, "MATH", principal, &teacher, student)
	other := testutil.CreateCourse(t, r.crs, "BIO", principal, &teacher, student)
	asgmt := testutil.CreateAssignment(t, r.asg, "HW1", crs, teacher)
	kept := testutil.CreateAssignment(t, r.asg, "HW2", other, teacher)
	testutil.CreateSubmission(t, r.asg, asgmt, student, "42")
	keptSub := testutil.CreateSubmission(t, r.asg, kept, student, "43")

	require.NoError(t, r.crs.DeleteCourse(ctx, crs.ID))
	assert.Equal(t, core.ErrNotFound, errors.Cause(r.crs.DeleteCourse(ctx, crs.ID)))

	_, err := r.asg.GetAssignmentByID(ctx, asgmt.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	subs, err := r.asg.ListSubmissions(ctx, assignment.SubmissionFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Equal(t, []assignment.Submission{keptSub}, subs)
}

func Test_assignmentRepository(t *testing.T) {
	r := setup()
	ctx := context.Background()
	principal := testutil.CreateUser(t, r.users, "princip", "", user.RolePrincipal, true)
	teacher := testutil.CreateUser(t, r.users, "teacher", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, r.users, "student", "", user.RoleStudent, true)
	crs := testutil.CreateCourse(t, r.crs, "MATH", principal, &teacher, student)

	now := time.Now()
	hw1 := testutil.CreateAssignment(t, r.asg, "HW1", crs, teacher, now)
	hw2 := testutil.CreateAssignment(t, r.asg, "HW2", crs, teacher, now.Add(time.Hour))

	asgmts, err := r.asg.ListAssignments(ctx, assignment.Filter{TeacherID: teacher.ID})
	require.NoError(t, err)
	assert.Equal(t, []assignment.Assignment{hw2, hw1}, asgmts)

	asgmts, err = r.asg.ListAssignments(ctx, assignment.Filter{CourseIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, asgmts)

	_, err = r.asg.CreateAssignment(ctx, assignment.Assignment{ID: "x", CourseID: crs.ID, TeacherID: student.ID})
	assert.True(t, core.IsConstraintViolation(err))
	_, err = r.asg.CreateAssignment(ctx, assignment.Assignment{ID: "x", CourseID: "lol", TeacherID: teacher.ID})
	assert.True(t, core.IsConstraintViolation(err))

	_, err = r.asg.CreateSubmission(ctx, assignment.Submission{ID: "x", AssignmentID: hw1.ID, StudentID: teacher.ID})
	assert.True(t, core.IsConstraintViolation(err))
	_, err = r.asg.CreateSubmission(ctx, assignment.Submission{ID: "x", AssignmentID: "lol", StudentID: student.ID})
	assert.True(t, core.IsConstraintViolation(err))

	s1 := testutil.CreateSubmission(t, r.asg, hw1, student, "first", now)
	s2 := testutil.CreateSubmission(t, r.asg, hw1, student, "second", now.Add(time.Minute))
	subs, err := r.asg.ListSubmissions(ctx, assignment.SubmissionFilter{AssignmentID: hw1.ID})
	require.NoError(t, err)
	assert.Equal(t, []assignment.Submission{s2, s1}, subs)

	require.NoError(t, r.asg.DeleteAssignment(ctx, hw1.ID))
	subs, err = r.asg.ListSubmissions(ctx, assignment.SubmissionFilter{AssignmentID: hw1.ID})
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, core.ErrNotFound, errors.Cause(r.asg.DeleteAssignment(ctx, hw1.ID)))
}
