package course_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/storage/database/inmem"
	"github.com/trezcool/schoolsys/tests"
)

type fixture struct {
	users    user.Repository
	courses  course.Repository
	svc      *course.Service
	db       *inmemdb.DB
	princ    user.User
	teacher  user.User
	student1 user.User
	student2 user.User
}

func setup(t *testing.T) fixture {
	db := inmemdb.NewDB()
	f := fixture{
		db:      db,
		users:   inmemdb.NewUserRepository(db),
		courses: inmemdb.NewCourseRepository(db),
	}
	f.svc = course.NewService(f.courses, inmemdb.NewTransactor(db))
	f.princ = testutil.CreateUser(t, f.users, "principal", "", user.RolePrincipal, true)
	f.teacher = testutil.CreateUser(t, f.users, "teacher", "", user.RoleTeacher, true)
	f.student1 = testutil.CreateUser(t, f.users, "student1", "", user.RoleStudent, true)
	f.student2 = testutil.CreateUser(t, f.users, "student2", "", user.RoleStudent, true)
	return f
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	crs, err := f.svc.Create(ctx, f.princ.ID, course.CourseData{CourseID: "MATH101", Name: "Maths"})
	require.NoError(t, err)
	assert.Equal(t, f.princ.ID, crs.PrincipalID)
	assert.False(t, crs.TeacherID.Valid)
	assert.Equal(t, []string{}, crs.StudentIDs)

	crs, err = f.svc.Create(ctx, f.princ.ID, course.CourseData{
		CourseID:   "PHYS101",
		Name:       "Physics",
		TeacherID:  f.teacher.ID,
		StudentIDs: []string{f.student1.ID, f.student2.ID, f.student1.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, null.StringFrom(f.teacher.ID), crs.TeacherID)
	assert.ElementsMatch(t, []string{f.student1.ID, f.student2.ID}, crs.StudentIDs)

	t.Run("course id taken", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.princ.ID, course.CourseData{CourseID: "MATH101", Name: "Maths again"})
		fldErrs := core.FieldErrors(errors.Cause(err), core.NewTranslator())
		assert.Equal(t, map[string][]string{"course_id": {course.ErrCourseIDExists.Error()}}, fldErrs)
	})

	t.Run("wrong member role", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.princ.ID, course.CourseData{CourseID: "CHEM101", Name: "Chemistry", TeacherID: f.student1.ID})
		assert.True(t, core.IsConstraintViolation(err))

		courses, err := f.svc.List(ctx, course.Filter{PrincipalID: f.princ.ID})
		require.NoError(t, err)
		assert.Len(t, courses, 2)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := testutil.CreateUser(t, f.users, "principal2", "", user.RolePrincipal, true)
	crs := testutil.CreateCourse(t, f.courses, "MATH101", f.princ, &f.teacher, f.student1)
	testutil.CreateCourse(t, f.courses, "PHYS101", f.princ, nil)

	crs.PrincipalID = other.ID
	updated, err := f.svc.Update(ctx, crs, course.CourseData{CourseID: "MATH101", Name: "Algebra", StudentIDs: []string{f.student2.ID}})
	require.NoError(t, err)
	assert.Equal(t, f.princ.ID, updated.PrincipalID)
	assert.Equal(t, "Algebra", updated.Name)
	assert.False(t, updated.TeacherID.Valid)
	assert.Equal(t, []string{f.student2.ID}, updated.StudentIDs)

	_, err = f.svc.Update(ctx, updated, course.CourseData{CourseID: "PHYS101", Name: "Algebra"})
	require.Error(t, err)
	fldErrs := core.FieldErrors(errors.Cause(err), core.NewTranslator())
	assert.Equal(t, map[string][]string{"course_id": {course.ErrCourseIDExists.Error()}}, fldErrs)

	_, err = f.svc.Update(ctx, course.Course{ID: "unknown"}, course.CourseData{CourseID: "X", Name: "X"})
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	crs := testutil.CreateCourse(t, f.courses, "MATH101", f.princ, &f.teacher, f.student1)

	tests := []struct {
		name      string
		courseID  string
		studentID string
		wantErr   error
		want      []string
	}{
		{name: "enroll", courseID: crs.ID, studentID: f.student2.ID, want: []string{f.student1.ID, f.student2.ID}},
		{name: "idempotent", courseID: crs.ID, studentID: f.student2.ID, want: []string{f.student1.ID, f.student2.ID}},
		{name: "unknown course", courseID: "unknown", studentID: f.student2.ID, wantErr: core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Enroll(ctx, tt.courseID, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StudentIDs)
		})
	}

	t.Run("not a student", func(t *testing.T) {
		_, err := f.svc.Enroll(ctx, crs.ID, f.teacher.ID)
		assert.True(t, core.IsConstraintViolation(err))
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	asgmts := inmemdb.NewAssignmentRepository(f.db)
	crs := testutil.CreateCourse(t, f.courses, "MATH101", f.princ, &f.teacher, f.student1)
	asgmt := testutil.CreateAssignment(t, asgmts, "Fractions", crs, f.teacher)
	testutil.CreateSubmission(t, asgmts, asgmt, f.student1, "1/2")

	require.NoError(t, f.svc.Delete(ctx, crs.ID))

	_, err := f.svc.Get(ctx, crs.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))
	_, err = asgmts.GetAssignmentByID(ctx, asgmt.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))

	err = f.svc.Delete(ctx, crs.ID)
	assert.Equal(t, core.ErrNotFound, errors.Cause(err))
}

func TestCourseData_Validate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	crs := testutil.CreateCourse(t, f.courses, "MATH101", f.princ, nil)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	tests := []struct {
		name    string
		cd      course.CourseData
		exclude []string
		wantErr map[string][]string
	}{
		{name: "valid", cd: course.CourseData{CourseID: " PHYS101 ", Name: "Physics", StudentIDs: []string{" s1", "s1", ""}}},
		{
			name: "required fields",
			wantErr: map[string][]string{
				"course_id":   {"this field is required"},
				"course_name": {"this field is required"},
			},
		},
		{name: "taken", cd: course.CourseData{CourseID: "MATH101", Name: "Maths"}, wantErr: map[string][]string{"course_id": {course.ErrCourseIDExists.Error()}}},
		{name: "taken by itself", cd: course.CourseData{CourseID: "MATH101", Name: "Maths"}, exclude: []string{crs.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cd.Validate(ctx, validate, f.svc, tt.exclude...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, core.FieldErrors(errors.Cause(err), translator))
		})
	}

	cd := course.CourseData{CourseID: " PHYS101 ", Name: " Physics ", StudentIDs: []string{" s1", "s1", ""}}
	cd.Clean()
	assert.Equal(t, course.CourseData{CourseID: "PHYS101", Name: "Physics", StudentIDs: []string{"s1"}}, cd)
}

func TestFilter_Match(t *testing.T) {
	crs := course.Course{ID: "c1", PrincipalID: "p1", TeacherID: null.StringFrom("t1"), StudentIDs: []string{"s1"}}

	tests := []struct {
		name   string
		filter course.Filter
		want   bool
	}{
		{name: "empty filter", want: true},
		{name: "principal", filter: course.Filter{PrincipalID: "p1"}, want: true},
		{name: "other principal", filter: course.Filter{PrincipalID: "p2"}},
		{name: "teacher", filter: course.Filter{TeacherID: "t1"}, want: true},
		{name: "other teacher", filter: course.Filter{TeacherID: "t2"}},
		{name: "enrolled", filter: course.Filter{StudentID: "s1"}, want: true},
		{name: "not enrolled", filter: course.Filter{StudentID: "s2"}},
		{name: "available", filter: course.Filter{NotStudentID: "s2"}, want: true},
		{name: "not available", filter: course.Filter{NotStudentID: "s1"}},
		{name: "and", filter: course.Filter{PrincipalID: "p1", TeacherID: "t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(crs))
		})
	}

	assert.False(t, course.Filter{TeacherID: "t1"}.Match(course.Course{}))
}

func TestCheckMembers(t *testing.T) {
	roles := map[string]user.Role{
		"p1": user.RolePrincipal,
		"t1": user.RoleTeacher,
		"s1": user.RoleStudent,
	}

	tests := []struct {
		name    string
		crs     course.Course
		wantErr string
	}{
		{name: "valid", crs: course.Course{PrincipalID: "p1", TeacherID: null.StringFrom("t1"), StudentIDs: []string{"s1"}}},
		{name: "no teacher", crs: course.Course{PrincipalID: "p1"}},
		{name: "principal is not a principal", crs: course.Course{PrincipalID: "t1"}, wantErr: "user t1 is not a principal"},
		{name: "unknown teacher", crs: course.Course{PrincipalID: "p1", TeacherID: null.StringFrom("x")}, wantErr: "unknown user x"},
		{name: "student is a teacher", crs: course.Course{PrincipalID: "p1", StudentIDs: []string{"s1", "t1"}}, wantErr: "user t1 is not a student"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := course.CheckMembers(tt.crs, roles)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	crs := course.Course{PrincipalID: "p1", TeacherID: null.StringFrom("t1"), StudentIDs: []string{"s1", "s2"}}
	assert.Equal(t, []string{"p1", "t1", "s1", "s2"}, course.MemberIDs(crs))
}
