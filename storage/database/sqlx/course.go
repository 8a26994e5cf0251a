package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/storage/database"
)

const courseColumns = `id, course_id, course_name, teacher_id, principal_id, created_at, updated_at`

type courseRepository struct {
	db *sqlx.DB
	tx core.Transactor
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db, tx: database.NewTransactor(db)}
}

func (repo *courseRepository) CheckUniqueness(ctx context.Context, courseID string, excludedIDs ...string) error {
	q, args, err := sqlx.In(
		`SELECT true FROM course WHERE course_id = ? AND id NOT IN (?) LIMIT 1`,
		courseID, append([]string{"00000000-0000-0000-0000-000000000000"}, excludedIDs...),
	)
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var found bool
	conn := database.Conn(ctx, repo.db)
	if err = conn.GetContext(ctx, &found, conn.Rebind(q), args...); err != nil {
		if isNoRows(err) {
			return nil
		}
		return err
	}
	return course.ErrCourseIDExists
}

// checkMembers loads the roles of the users referenced by crs & checks them.
func (repo *courseRepository) checkMembers(ctx context.Context, crs course.Course) error {
	roles, err := userRoles(ctx, database.Conn(ctx, repo.db), course.MemberIDs(crs)...)
	if err != nil {
		return errors.Wrap(err, "loading member roles")
	}
	return course.CheckMembers(crs, roles)
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.StudentIDs = core.UniqueStrings(crs.StudentIDs)
	err := repo.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.checkMembers(ctx, crs); err != nil {
			return err
		}
		conn := database.Conn(ctx, repo.db)
		_, err := sqlx.NamedExecContext(ctx, conn,
			`INSERT INTO course (`+courseColumns+`)
			VALUES (:id, :course_id, :course_name, :teacher_id, :principal_id, :created_at, :updated_at)`,
			crs,
		)
		if err != nil {
			return courseWriteError(err)
		}
		return insertStudents(ctx, conn, crs.ID, crs.StudentIDs...)
	})
	if err != nil {
		return course.Course{}, err
	}
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	conn := database.Conn(ctx, repo.db)

	var crs course.Course
	if err := conn.GetContext(ctx, &crs, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, err
	}

	students, err := courseStudents(ctx, conn, crs.ID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "loading students")
	}
	crs.StudentIDs = students[crs.ID]
	if crs.StudentIDs == nil {
		crs.StudentIDs = []string{}
	}
	return crs, nil
}

func (repo *courseRepository) ListCourses(ctx context.Context, filter course.Filter) ([]course.Course, error) {
	q := `SELECT ` + courseColumns + ` FROM course WHERE true`
	args := make([]interface{}, 0, 4)
	if filter.PrincipalID != "" {
		q += ` AND principal_id = ?`
		args = append(args, filter.PrincipalID)
	}
	if filter.TeacherID != "" {
		q += ` AND teacher_id = ?`
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		q += ` AND id IN (SELECT course_id FROM course_student WHERE student_id = ?)`
		args = append(args, filter.StudentID)
	}
	if filter.NotStudentID != "" {
		q += ` AND id NOT IN (SELECT course_id FROM course_student WHERE student_id = ?)`
		args = append(args, filter.NotStudentID)
	}
	q += ` ORDER BY course_id`

	conn := database.Conn(ctx, repo.db)
	courses := make([]course.Course, 0)
	if err := conn.SelectContext(ctx, &courses, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return courses, nil
	}

	ids := make([]string, 0, len(courses))
	for _, crs := range courses {
		ids = append(ids, crs.ID)
	}
	students, err := courseStudents(ctx, conn, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "loading students")
	}
	for i := range courses {
		courses[i].StudentIDs = students[courses[i].ID]
		if courses[i].StudentIDs == nil {
			courses[i].StudentIDs = []string{}
		}
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if !isUUID(crs.ID) {
		return course.Course{}, course.ErrNotFound
	}
	crs.StudentIDs = core.UniqueStrings(crs.StudentIDs)
	err := repo.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.checkMembers(ctx, crs); err != nil {
			return err
		}
		conn := database.Conn(ctx, repo.db)
		res, err := sqlx.NamedExecContext(ctx, conn,
			`UPDATE course SET
				course_id = :course_id, course_name = :course_name, teacher_id = :teacher_id, updated_at = :updated_at
			WHERE id = :id`,
			crs,
		)
		if err != nil {
			return courseWriteError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return course.ErrNotFound
		}
		if _, err = conn.ExecContext(ctx, `DELETE FROM course_student WHERE course_id = $1`, crs.ID); err != nil {
			return errors.Wrap(err, "clearing students")
		}
		return insertStudents(ctx, conn, crs.ID, crs.StudentIDs...)
	})
	if err != nil {
		return course.Course{}, err
	}
	return crs, nil
}

func (repo *courseRepository) AddStudent(ctx context.Context, id, studentID string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var crs course.Course
	err := repo.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := database.Conn(ctx, repo.db)
		roles, err := userRoles(ctx, conn, studentID)
		if err != nil {
			return errors.Wrap(err, "loading student role")
		}
		if role, ok := roles[studentID]; !ok || role != user.RoleStudent {
			return core.NewConstraintViolation("students", "user "+studentID+" is not a "+string(user.RoleStudent))
		}
		// lock the course row so concurrent enrollments serialize
		var locked string
		if err = conn.GetContext(ctx, &locked, `SELECT id FROM course WHERE id = $1 FOR UPDATE`, id); err != nil {
			if isNoRows(err) {
				return course.ErrNotFound
			}
			return err
		}
		if err = insertStudents(ctx, conn, id, studentID); err != nil {
			return err
		}
		crs, err = repo.GetCourseByID(ctx, id)
		return err
	})
	if err != nil {
		return course.Course{}, err
	}
	return crs, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	res, err := database.Conn(ctx, repo.db).ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func insertStudents(ctx context.Context, conn database.Executor, courseID string, studentIDs ...string) error {
	for _, sid := range studentIDs {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO course_student (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			courseID, sid,
		)
		if err != nil {
			return errors.Wrap(err, "inserting student")
		}
	}
	return nil
}

func courseStudents(ctx context.Context, conn database.Executor, courseIDs ...string) (map[string][]string, error) {
	q, args, err := sqlx.In(
		`SELECT course_id, student_id FROM course_student WHERE course_id IN (?) ORDER BY student_id`,
		courseIDs,
	)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		CourseID  string `db:"course_id"`
		StudentID string `db:"student_id"`
	}
	if err = conn.SelectContext(ctx, &rows, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	students := make(map[string][]string, len(courseIDs))
	for _, row := range rows {
		students[row.CourseID] = append(students[row.CourseID], row.StudentID)
	}
	return students, nil
}

// userRoles maps the given user IDs to their roles; unknown IDs are absent.
func userRoles(ctx context.Context, conn database.Executor, ids ...string) (map[string]user.Role, error) {
	roles := make(map[string]user.Role, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}
	q, args, err := sqlx.In(`SELECT id, role FROM "user" WHERE id::text IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID   string    `db:"id"`
		Role user.Role `db:"role"`
	}
	if err = conn.SelectContext(ctx, &rows, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		roles[row.ID] = row.Role
	}
	return roles, nil
}

func courseWriteError(err error) error {
	if constraint, ok := pqConstraint(err, pqUniqueViolation); ok && constraint == "course_course_id_key" {
		return course.ErrCourseIDExists
	}
	return err
}
