package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/storage/database"
)

// TestDSNEnv names the env var holding the DSN of a disposable Postgres database.
const TestDSNEnv = "SCHOOLSYS_TEST_DATABASE_URL"

// PrepareDB opens the test database, migrates it & truncates every table.
// The test is skipped if TestDSNEnv is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", TestDSNEnv)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE "user", course, course_student, assignment, submission CASCADE`); err != nil {
		t.Fatalf("PrepareDB() failed to truncate: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	uname, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Username:  uname,
		Email:     uname + "@test.cd",
		Role:      role,
		UniqueID:  "ID-" + uname,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	courseID string,
	principal user.User,
	teacher *user.User,
	students ...user.User,
) course.Course {
	now := time.Now().UTC()
	crs := course.Course{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		Name:        "Course " + courseID,
		PrincipalID: principal.ID,
		StudentIDs:  make([]string, 0, len(students)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if teacher != nil {
		crs.TeacherID = null.StringFrom(teacher.ID)
	}
	for _, std := range students {
		crs.StudentIDs = append(crs.StudentIDs, std.ID)
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	title string,
	crs course.Course,
	teacher user.User,
	createdAt ...time.Time,
) assignment.Assignment {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	asgmt, err := repo.CreateAssignment(context.Background(), assignment.Assignment{
		ID:          uuid.NewString(),
		Title:       title,
		Description: "Description of " + title,
		CourseID:    crs.ID,
		TeacherID:   teacher.ID,
		CreatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asgmt
}

func CreateSubmission(
	t *testing.T,
	repo assignment.Repository,
	asgmt assignment.Assignment,
	student user.User,
	answer string,
	submittedAt ...time.Time,
) assignment.Submission {
	tstamp := time.Now().UTC()
	if len(submittedAt) > 0 {
		tstamp = submittedAt[0].UTC()
	}
	sub, err := repo.CreateSubmission(context.Background(), assignment.Submission{
		ID:           uuid.NewString(),
		AssignmentID: asgmt.ID,
		StudentID:    student.ID,
		Answer:       answer,
		SubmittedAt:  tstamp,
	})
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}
