package assignment

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/user"
)

// Notifier emails the people concerned by new assignments & submissions.
// Users without an email address are skipped.
type Notifier struct {
	users  *user.Service
	mailer core.EmailService
	logger core.Logger
}

func NewNotifier(users *user.Service, mailer core.EmailService, logger core.Logger) *Notifier {
	return &Notifier{users: users, mailer: mailer, logger: logger}
}

// AssignmentCreated emails the students enrolled in the course.
func (n *Notifier) AssignmentCreated(ctx context.Context, crs course.Course, asgmt Assignment) {
	if len(crs.StudentIDs) == 0 {
		return
	}
	students, err := n.users.List(ctx, user.Filter{IDs: crs.StudentIDs})
	if err != nil {
		n.logger.Error("notifying new assignment", errors.Wrap(err, "listing students"))
		return
	}

	msgs := make([]*core.EmailMessage, 0, len(students))
	for _, std := range students {
		if std.Email == "" || !std.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: std.Username, Address: std.Email}},
			Subject:      "New assignment: " + asgmt.Title,
			TemplateName: "new_assignment",
			TemplateData: map[string]string{
				"Username":    std.Username,
				"Title":       asgmt.Title,
				"Description": asgmt.Description,
				"CourseID":    crs.CourseID,
				"CourseName":  crs.Name,
			},
		})
	}
	if len(msgs) > 0 {
		n.mailer.SendMessages(msgs...)
	}
}

// SubmissionCreated emails the teacher of the assignment.
func (n *Notifier) SubmissionCreated(ctx context.Context, asgmt Assignment, sub Submission) {
	teacher, err := n.users.GetByID(ctx, asgmt.TeacherID)
	if err != nil {
		n.logger.Error("notifying new submission", errors.Wrap(err, "finding teacher"))
		return
	}
	if teacher.Email == "" {
		return
	}
	student, err := n.users.GetByID(ctx, sub.StudentID)
	if err != nil {
		n.logger.Error("notifying new submission", errors.Wrap(err, "finding student"))
		return
	}

	n.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: teacher.Username, Address: teacher.Email}},
		Subject:      "New submission: " + asgmt.Title,
		TemplateName: "new_submission",
		TemplateData: map[string]string{
			"Username":        teacher.Username,
			"StudentUsername": student.Username,
			"Title":           asgmt.Title,
		},
	})
}
