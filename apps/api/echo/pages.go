package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/policy"
	"github.com/trezcool/schoolsys/core/user"
)

func registerPages(e *echo.Echo, h *handler, throttle echo.MiddlewareFunc) {
	getPost := []string{http.MethodGet, http.MethodPost}

	e.GET("/", h.index)
	e.GET("/login", h.loginPage)
	e.POST("/login", h.loginPage, throttle)
	e.GET("/register", h.registerPage)
	e.POST("/register", h.registerPage, throttle)
	e.Match(getPost, "/logout", h.logoutPage)

	// principal
	e.GET("/principal", h.principalDashboard)
	e.Match(getPost, "/course/new", h.createCourse)
	e.Match(getPost, "/course/:id/edit", h.editCourse)
	e.POST("/course/:id/delete", h.deleteCourse)

	// teacher
	e.GET("/teacher", h.teacherDashboard)
	e.Match(getPost, "/course/:id/set-assignment", h.setAssignment)
	e.GET("/assignment/:id/view-submissions", h.viewSubmissions)
	e.POST("/assignment/:id/delete", h.deleteAssignment)

	// student
	e.GET("/student", h.studentDashboard)
	e.Match(getPost, "/course/:id/enroll", h.enrollCourse)
	e.GET("/student/assignments", h.viewAssignments)
	e.Match(getPost, "/assignment/:id/submit", h.submitAssignment)
}

// dashboardPath returns the landing page of the role.
func dashboardPath(role user.Role) string {
	switch role {
	case user.RoleStudent:
		return "/student"
	case user.RoleTeacher:
		return "/teacher"
	case user.RolePrincipal:
		return "/principal"
	default:
		return "/"
	}
}

func isFormError(err error) bool {
	switch errors.Cause(err).(type) {
	case validator.ValidationErrors, *core.ValidationError, *core.ConstraintViolation:
		return true
	}
	return false
}

// renderForm re-renders a form page with its errors, or returns err if it is not a form error.
func (h *handler) renderForm(ctx echo.Context, name string, data echo.Map, err error) error {
	if !isFormError(err) {
		return err
	}
	p := newPage(ctx, data)
	p.Errors = core.FieldErrors(errors.Cause(err), h.translator)
	return ctx.Render(http.StatusBadRequest, name, p)
}

func (h *handler) render(ctx echo.Context, name string, data echo.Map) error {
	return ctx.Render(http.StatusOK, name, newPage(ctx, data))
}

func redirect(ctx echo.Context, to string) error {
	return ctx.Redirect(http.StatusFound, to)
}

// safeNext only allows local redirects.
func safeNext(next string) bool {
	return strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\")
}

// Auth

func (h *handler) index(ctx echo.Context) error {
	if id := contextIdentity(ctx); id != nil {
		if to := dashboardPath(id.Role); to != "/" {
			return redirect(ctx, to)
		}
	}
	return h.render(ctx, "index", nil)
}

func (h *handler) loginPage(ctx echo.Context) error {
	if id := contextIdentity(ctx); id != nil {
		return redirect(ctx, dashboardPath(id.Role))
	}
	data := echo.Map{"Next": ctx.QueryParam("next")}
	if ctx.Request().Method != http.MethodPost {
		return h.render(ctx, "login", data)
	}

	data["Next"] = ctx.FormValue("next")
	usr, err := h.login(ctx)
	if err != nil {
		switch errors.Cause(err) {
		case core.ErrInvalidCredentials, core.ErrAccountDeactivated:
			code, msg, _ := statusOf(err, h.translator)
			p := newPage(ctx, data)
			p.Notice = msg
			return ctx.Render(code, "login", p)
		}
		return h.renderForm(ctx, "login", data, err)
	}

	sess, err := h.authn.StartSession(ctx.Request().Context(), auth.IdentityOf(usr))
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	h.setSessionCookie(ctx, sess)

	if next := data["Next"].(string); safeNext(next) {
		return redirect(ctx, next)
	}
	return redirect(ctx, dashboardPath(usr.Role))
}

func (h *handler) registerPage(ctx echo.Context) error {
	data := echo.Map{"Roles": user.RoleChoices, "Form": user.NewUser{Role: user.DefaultRole}}
	if ctx.Request().Method != http.MethodPost {
		return h.render(ctx, "register", data)
	}

	_, creds, err := h.register(ctx, core.AuthModeSession)
	if err != nil {
		data["Form"] = user.NewUser{
			Username: ctx.FormValue("username"),
			Email:    ctx.FormValue("email"),
			Role:     user.Role(ctx.FormValue("role")),
			UniqueID: ctx.FormValue("unique_id"),
		}
		return h.renderForm(ctx, "register", data, err)
	}
	h.setSessionCookie(ctx, creds.session)
	return redirect(ctx, "/login")
}

func (h *handler) logoutPage(ctx echo.Context) error {
	if _, err := h.authorize(ctx, policy.Logout, nil); err != nil {
		return err
	}
	if err := h.endSession(ctx); err != nil {
		return err
	}
	return redirect(ctx, "/login")
}

// Principal

func (h *handler) principalDashboard(ctx echo.Context) error {
	id, err := h.authorize(ctx, policy.ViewPrincipalDashboard, nil)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	courses, err := h.courses.List(c, course.Filter{PrincipalID: id.UserID})
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	teacherIDs := make([]string, 0, len(courses))
	for _, crs := range courses {
		if crs.TeacherID.Valid {
			teacherIDs = append(teacherIDs, crs.TeacherID.String)
		}
	}
	names, err := h.users.UsernamesByID(c, teacherIDs...)
	if err != nil {
		return err
	}
	return h.render(ctx, "principal_dash", echo.Map{"Courses": courses, "Usernames": names})
}

// courseFormData returns the course form along with its teacher & student choices.
func (h *handler) courseFormData(ctx echo.Context, title string, form course.CourseData) (echo.Map, error) {
	c := ctx.Request().Context()
	teachers, err := h.users.List(c, user.Filter{Role: user.RoleTeacher})
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}
	students, err := h.users.List(c, user.Filter{Role: user.RoleStudent})
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	return echo.Map{"Title": title, "Form": form, "Teachers": teachers, "Students": students}, nil
}

func (h *handler) createCourse(ctx echo.Context) error {
	id, err := h.authorize(ctx, policy.CreateCourse, nil)
	if err != nil {
		return err
	}

	var form course.CourseData
	if ctx.Request().Method == http.MethodPost {
		if err = ctx.Bind(&form); err != nil {
			return errors.Wrap(err, "binding to CourseData")
		}
		c := ctx.Request().Context()
		if err = form.Validate(c, h.validate, h.courses); err == nil {
			if _, err = h.courses.Create(c, id.UserID, form); err == nil {
				return redirect(ctx, "/principal")
			}
		}
	}

	data, dErr := h.courseFormData(ctx, "New course", form)
	if dErr != nil {
		return dErr
	}
	if err != nil {
		return h.renderForm(ctx, "course_form", data, err)
	}
	return h.render(ctx, "course_form", data)
}

func (h *handler) editCourse(ctx echo.Context) error {
	crs, _, err := h.courseFor(ctx, policy.EditCourse)
	if err != nil {
		return err
	}

	form := course.CourseData{
		CourseID:   crs.CourseID,
		Name:       crs.Name,
		TeacherID:  crs.TeacherID.String,
		StudentIDs: crs.StudentIDs,
	}
	if ctx.Request().Method == http.MethodPost {
		form = course.CourseData{}
		if err = ctx.Bind(&form); err != nil {
			return errors.Wrap(err, "binding to CourseData")
		}
		c := ctx.Request().Context()
		if err = form.Validate(c, h.validate, h.courses, crs.ID); err == nil {
			if _, err = h.courses.Update(c, crs, form); err == nil {
				return redirect(ctx, "/principal")
			}
		}
	}

	data, dErr := h.courseFormData(ctx, "Edit "+crs.CourseID, form)
	if dErr != nil {
		return dErr
	}
	if err != nil {
		return h.renderForm(ctx, "course_form", data, err)
	}
	return h.render(ctx, "course_form", data)
}

func (h *handler) deleteCourse(ctx echo.Context) error {
	crs, _, err := h.courseFor(ctx, policy.DeleteCourse)
	if err != nil {
		return err
	}
	if err = h.courses.Delete(ctx.Request().Context(), crs.ID); err != nil {
		return err
	}
	return redirect(ctx, "/principal")
}

// Teacher

func (h *handler) teacherDashboard(ctx echo.Context) error {
	id, err := h.authorize(ctx, policy.ViewTeacherDashboard, nil)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	courses, err := h.courses.List(c, course.Filter{TeacherID: id.UserID})
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	asgmts, err := h.assignments.ListByTeacher(c, id.UserID)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	return h.render(ctx, "teacher_dash", echo.Map{
		"Courses":     courses,
		"Assignments": asgmts,
		"CourseNames": courseNames(courses),
	})
}

func (h *handler) setAssignment(ctx echo.Context) error {
	crs, id, err := h.courseFor(ctx, policy.SetAssignment)
	if err != nil {
		return err
	}

	var form assignment.NewAssignment
	if ctx.Request().Method == http.MethodPost {
		if err = ctx.Bind(&form); err != nil {
			return errors.Wrap(err, "binding to NewAssignment")
		}
		form.CourseID = crs.ID
		if err = form.Validate(h.validate); err == nil {
			if _, err = h.assignments.Create(ctx.Request().Context(), id.UserID, crs, form); err == nil {
				return redirect(ctx, "/teacher")
			}
		}
	}

	data := echo.Map{"Course": crs, "Form": form}
	if err != nil {
		return h.renderForm(ctx, "set_assignment", data, err)
	}
	return h.render(ctx, "set_assignment", data)
}

func (h *handler) viewSubmissions(ctx echo.Context) error {
	asgmt, _, err := h.assignmentFor(ctx, policy.ViewSubmissions)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	subs, err := h.assignments.ListSubmissions(c, asgmt.ID)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	studentIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		studentIDs = append(studentIDs, sub.StudentID)
	}
	names, err := h.users.UsernamesByID(c, studentIDs...)
	if err != nil {
		return err
	}
	return h.render(ctx, "view_submissions", echo.Map{"Assignment": asgmt, "Submissions": subs, "Usernames": names})
}

func (h *handler) deleteAssignment(ctx echo.Context) error {
	asgmt, _, err := h.assignmentFor(ctx, policy.DeleteAssignment)
	if err != nil {
		return err
	}
	if err = h.assignments.Delete(ctx.Request().Context(), asgmt.ID); err != nil {
		return err
	}
	return redirect(ctx, "/teacher")
}

// Student

func (h *handler) studentDashboard(ctx echo.Context) error {
	if _, err := h.authorize(ctx, policy.ViewStudentDashboard, nil); err != nil {
		return err
	}
	return h.renderStudentDashboard(ctx, "")
}

// renderStudentDashboard lists the student's courses & the ones they may still enroll in.
func (h *handler) renderStudentDashboard(ctx echo.Context, notice string) error {
	id := contextIdentity(ctx)
	c := ctx.Request().Context()
	courses, err := h.courses.List(c, course.Filter{StudentID: id.UserID})
	if err != nil {
		return errors.Wrap(err, "listing enrolled courses")
	}
	others, err := h.courses.List(c, course.Filter{NotStudentID: id.UserID})
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	p := newPage(ctx, echo.Map{"Courses": courses, "AllCourses": others})
	p.Notice = notice
	return ctx.Render(http.StatusOK, "student_dash", p)
}

// enrollCourse shows the enrollment page on GET & enrolls on POST.
// Rejected enrollments only show a generic notice on the dashboard.
func (h *handler) enrollCourse(ctx echo.Context) error {
	crs, id, err := h.courseFor(ctx, policy.EnrollCourse)
	if ctx.Request().Method != http.MethodPost {
		if err != nil {
			return err
		}
		return h.render(ctx, "enroll_course", echo.Map{"Course": crs})
	}

	if err == nil {
		_, err = h.courses.Enroll(ctx.Request().Context(), crs.ID, id.UserID)
	}
	var notice string
	if err != nil {
		if code, _, _ := statusOf(err, h.translator); code >= http.StatusInternalServerError {
			return err
		}
		notice = actionFailed
	}
	return h.renderStudentDashboard(ctx, notice)
}

func (h *handler) viewAssignments(ctx echo.Context) error {
	asgmts, err := h.listOwnAssignments(ctx)
	if err != nil {
		return err
	}
	subs, err := h.listOwnSubmissions(ctx)
	if err != nil {
		return err
	}
	courses, err := h.courses.List(ctx.Request().Context(), course.Filter{StudentID: contextIdentity(ctx).UserID})
	if err != nil {
		return errors.Wrap(err, "listing enrolled courses")
	}
	titles := make(map[string]string, len(asgmts))
	for _, asgmt := range asgmts {
		titles[asgmt.ID] = asgmt.Title
	}
	return h.render(ctx, "view_assignments", echo.Map{
		"Assignments":      asgmts,
		"CourseNames":      courseNames(courses),
		"Submissions":      subs,
		"AssignmentTitles": titles,
	})
}

func (h *handler) submitAssignment(ctx echo.Context) error {
	asgmt, id, err := h.assignmentFor(ctx, policy.SubmitAssignment)
	if err != nil {
		return err
	}

	var form assignment.NewSubmission
	if ctx.Request().Method == http.MethodPost {
		if err = ctx.Bind(&form); err != nil {
			return errors.Wrap(err, "binding to NewSubmission")
		}
		if err = form.Validate(h.validate); err == nil {
			if _, err = h.assignments.Submit(ctx.Request().Context(), id.UserID, asgmt, form); err == nil {
				return redirect(ctx, "/student")
			}
		}
	}

	data := echo.Map{"Assignment": asgmt, "Form": form}
	if err != nil {
		return h.renderForm(ctx, "submit_assignment", data, err)
	}
	return h.render(ctx, "submit_assignment", data)
}

func courseNames(courses []course.Course) map[string]string {
	names := make(map[string]string, len(courses))
	for _, crs := range courses {
		names[crs.ID] = crs.CourseID + " - " + crs.Name
	}
	return names
}
