package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/storage/database"
)

const (
	assignmentColumns = `id, title, description, course_id, teacher_id, created_at`
	submissionColumns = `id, assignment_id, student_id, answer, submitted_at`
)

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *sqlx.DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func checkRole(ctx context.Context, conn database.Executor, field, id string, want user.Role) error {
	roles, err := userRoles(ctx, conn, id)
	if err != nil {
		return errors.Wrap(err, "loading "+field+" role")
	}
	role, ok := roles[id]
	if !ok {
		return core.NewConstraintViolation(field, "unknown user "+id)
	}
	if role != want {
		return core.NewConstraintViolation(field, "user "+id+" is not a "+string(want))
	}
	return nil
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, asgmt assignment.Assignment) (assignment.Assignment, error) {
	conn := database.Conn(ctx, repo.db)
	if err := checkRole(ctx, conn, "teacher", asgmt.TeacherID, user.RoleTeacher); err != nil {
		return assignment.Assignment{}, err
	}
	if !isUUID(asgmt.CourseID) {
		return assignment.Assignment{}, core.NewConstraintViolation("course", "unknown course "+asgmt.CourseID)
	}
	_, err := sqlx.NamedExecContext(ctx, conn,
		`INSERT INTO assignment (`+assignmentColumns+`)
		VALUES (:id, :title, :description, :course_id, :teacher_id, :created_at)`,
		asgmt,
	)
	if err != nil {
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return assignment.Assignment{}, core.NewConstraintViolation("course", "unknown course "+asgmt.CourseID)
		}
		return assignment.Assignment{}, err
	}
	return asgmt, nil
}

func (repo *assignmentRepository) GetAssignmentByID(ctx context.Context, id string) (assignment.Assignment, error) {
	if !isUUID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var asgmt assignment.Assignment
	err := database.Conn(ctx, repo.db).GetContext(ctx, &asgmt, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return assignment.Assignment{}, assignment.ErrNotFound
		}
		return assignment.Assignment{}, err
	}
	return asgmt, nil
}

func (repo *assignmentRepository) ListAssignments(ctx context.Context, filter assignment.Filter) ([]assignment.Assignment, error) {
	if filter.CourseIDs != nil && len(filter.CourseIDs) == 0 {
		return []assignment.Assignment{}, nil
	}

	q := `SELECT ` + assignmentColumns + ` FROM assignment WHERE true`
	args := make([]interface{}, 0, 2)
	if filter.TeacherID != "" {
		q += ` AND teacher_id = ?`
		args = append(args, filter.TeacherID)
	}
	if filter.CourseIDs != nil {
		q += ` AND course_id IN (?)`
		args = append(args, filter.CourseIDs)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	conn := database.Conn(ctx, repo.db)
	asgmts := make([]assignment.Assignment, 0)
	if err = conn.SelectContext(ctx, &asgmts, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	return asgmts, nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	if !isUUID(id) {
		return assignment.ErrNotFound
	}
	res, err := database.Conn(ctx, repo.db).ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (repo *assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission) (assignment.Submission, error) {
	conn := database.Conn(ctx, repo.db)
	if err := checkRole(ctx, conn, "student", sub.StudentID, user.RoleStudent); err != nil {
		return assignment.Submission{}, err
	}
	if !isUUID(sub.AssignmentID) {
		return assignment.Submission{}, core.NewConstraintViolation("assignment", "unknown assignment "+sub.AssignmentID)
	}
	_, err := sqlx.NamedExecContext(ctx, conn,
		`INSERT INTO submission (`+submissionColumns+`)
		VALUES (:id, :assignment_id, :student_id, :answer, :submitted_at)`,
		sub,
	)
	if err != nil {
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return assignment.Submission{}, core.NewConstraintViolation("assignment", "unknown assignment "+sub.AssignmentID)
		}
		return assignment.Submission{}, err
	}
	return sub, nil
}

func (repo *assignmentRepository) ListSubmissions(ctx context.Context, filter assignment.SubmissionFilter) ([]assignment.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submission WHERE true`
	args := make([]interface{}, 0, 2)
	if filter.AssignmentID != "" {
		q += ` AND assignment_id = ?`
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		q += ` AND student_id = ?`
		args = append(args, filter.StudentID)
	}
	q += ` ORDER BY submitted_at DESC, id DESC`

	conn := database.Conn(ctx, repo.db)
	subs := make([]assignment.Submission, 0)
	if err := conn.SelectContext(ctx, &subs, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	return subs, nil
}
