package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/policy"
)

func registerAssignmentAPI(g *echo.Group, h *handler) {
	g.GET("", h.apiListAssignments)
	g.POST("", h.apiCreateAssignment)
	g.GET("/:id/submissions", h.apiListSubmissions)
	g.POST("/:id/submissions", h.apiCreateSubmission)
}

func (h *handler) apiListAssignments(ctx echo.Context) error {
	asgmts, err := h.listOwnAssignments(ctx)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	return ctx.JSON(http.StatusOK, asgmts)
}

func (h *handler) apiCreateAssignment(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}
	crs, err := h.courseByField(ctx, "course", data.CourseID)
	if err != nil {
		return err
	}
	id, err := h.authorize(ctx, policy.SetAssignment, policy.CourseResource(crs))
	if err != nil {
		return err
	}

	asgmt, err := h.assignments.Create(ctx.Request().Context(), id.UserID, crs, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, asgmt)
}

func (h *handler) apiListSubmissions(ctx echo.Context) error {
	asgmt, _, err := h.assignmentFor(ctx, policy.ViewSubmissions)
	if err != nil {
		return err
	}
	subs, err := h.assignments.ListSubmissions(ctx.Request().Context(), asgmt.ID)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

// apiListOwnSubmissions lists every submission of the student, newest first.
func (h *handler) apiListOwnSubmissions(ctx echo.Context) error {
	subs, err := h.listOwnSubmissions(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (h *handler) apiCreateSubmission(ctx echo.Context) error {
	asgmt, id, err := h.assignmentFor(ctx, policy.SubmitAssignment)
	if err != nil {
		return err
	}
	var data assignment.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(h.validate); err != nil {
		return err
	}

	sub, err := h.assignments.Submit(ctx.Request().Context(), id.UserID, asgmt, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}
