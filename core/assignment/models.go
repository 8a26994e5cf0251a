package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolsys/core"
)

type Assignment struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	CourseID    string    `db:"course_id" json:"course"`
	TeacherID   string    `db:"teacher_id" json:"teacher"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"` // UTC
}

type Submission struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment"`
	StudentID    string    `db:"student_id" json:"student"`
	Answer       string    `db:"answer" json:"answer"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"` // UTC
}

type NewAssignment struct {
	Title       string `json:"title" form:"title" validate:"required,max=200,notblank"`
	Description string `json:"description" form:"description" validate:"required,notblank"`
	CourseID    string `json:"course" form:"course" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.CourseID = core.CleanString(na.CourseID)
	return validate.Struct(na)
}

type NewSubmission struct {
	Answer string `json:"answer" form:"answer" validate:"required,notblank"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Answer = core.CleanString(ns.Answer)
	return validate.Struct(ns)
}

// Filter applies AND operation on its set fields.
type Filter struct {
	TeacherID string
	CourseIDs []string // nil: any course; empty: none
}

func (f Filter) Match(a Assignment) bool {
	if f.TeacherID != "" && a.TeacherID != f.TeacherID {
		return false
	}
	if f.CourseIDs != nil && !core.ContainsString(f.CourseIDs, a.CourseID) {
		return false
	}
	return true
}

type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
}

func (f SubmissionFilter) Match(s Submission) bool {
	if f.AssignmentID != "" && s.AssignmentID != f.AssignmentID {
		return false
	}
	if f.StudentID != "" && s.StudentID != f.StudentID {
		return false
	}
	return true
}
