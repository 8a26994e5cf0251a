package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
)

type Course struct {
	ID          string      `db:"id" json:"id"`
	CourseID    string      `db:"course_id" json:"course_id"`
	Name        string      `db:"course_name" json:"course_name"`
	TeacherID   null.String `db:"teacher_id" json:"teacher_id"`
	PrincipalID string      `db:"principal_id" json:"principal_id"`
	StudentIDs  []string    `db:"-" json:"student_ids"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"` // UTC
}

func (c Course) HasStudent(id string) bool {
	return core.ContainsString(c.StudentIDs, id)
}

func (c Course) IsTaughtBy(id string) bool {
	return c.TeacherID.Valid && c.TeacherID.String == id
}

// CourseData is the editable part of a Course, used for creation & edition.
type CourseData struct {
	CourseID   string   `json:"course_id" form:"course_id" validate:"required,max=20,notblank"`
	Name       string   `json:"course_name" form:"course_name" validate:"required,max=100,notblank"`
	TeacherID  string   `json:"teacher_id" form:"teacher_id"`
	StudentIDs []string `json:"student_ids" form:"student_ids"`
}

func (cd *CourseData) Clean() {
	cd.CourseID = core.CleanString(cd.CourseID)
	cd.Name = core.CleanString(cd.Name)
	cd.TeacherID = core.CleanString(cd.TeacherID)
	cd.StudentIDs = core.UniqueStrings(cd.StudentIDs)
}

// Validate cleans & validates the CourseData then checks that its course_id is not taken by another course.
func (cd *CourseData) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excludedIDs ...string) error {
	cd.Clean()
	if err := validate.Struct(cd); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, cd.CourseID, excludedIDs...)
}

// Filter applies AND operation on its set fields.
type Filter struct {
	PrincipalID  string
	TeacherID    string
	StudentID    string // enrolled
	NotStudentID string // not enrolled
}

func (f Filter) Match(c Course) bool {
	if f.PrincipalID != "" && c.PrincipalID != f.PrincipalID {
		return false
	}
	if f.TeacherID != "" && !c.IsTaughtBy(f.TeacherID) {
		return false
	}
	if f.StudentID != "" && !c.HasStudent(f.StudentID) {
		return false
	}
	if f.NotStudentID != "" && c.HasStudent(f.NotStudentID) {
		return false
	}
	return true
}

// CheckMembers verifies the roles of the users a Course references:
// the principal must be a Principal, the teacher (if any) a Teacher and every student a Student.
// `roles` maps user IDs to their role; a missing ID is an unknown user.
func CheckMembers(c Course, roles map[string]user.Role) error {
	if err := checkRole(roles, "principal", c.PrincipalID, user.RolePrincipal); err != nil {
		return err
	}
	if c.TeacherID.Valid {
		if err := checkRole(roles, "teacher", c.TeacherID.String, user.RoleTeacher); err != nil {
			return err
		}
	}
	for _, id := range c.StudentIDs {
		if err := checkRole(roles, "students", id, user.RoleStudent); err != nil {
			return err
		}
	}
	return nil
}

func checkRole(roles map[string]user.Role, field, id string, want user.Role) error {
	role, ok := roles[id]
	if !ok {
		return core.NewConstraintViolation(field, "unknown user "+id)
	}
	if role != want {
		return core.NewConstraintViolation(field, "user "+id+" is not a "+string(want))
	}
	return nil
}

// MemberIDs returns every user ID referenced by the Course.
func MemberIDs(c Course) []string {
	ids := make([]string, 0, len(c.StudentIDs)+2)
	ids = append(ids, c.PrincipalID)
	if c.TeacherID.Valid {
		ids = append(ids, c.TeacherID.String)
	}
	return append(ids, c.StudentIDs...)
}
