package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/juniordw/rotasi-lms-sub000/core/completion"
)

type enrollmentApi struct {
	bind      binder
	lifecycle *completion.Service
}

type enrollRequest struct {
	CourseID int64 `json:"course_id" validate:"required,gt=0"`
	UserID   int64 `json:"user_id" validate:"omitempty,gt=0"` // defaults to the caller
}

func registerEnrollmentAPI(app *echo.Echo, jwt echo.MiddlewareFunc, bind binder, lifecycle *completion.Service) {
	api := enrollmentApi{bind: bind, lifecycle: lifecycle}

	g := app.Group("/enrollments", jwt, principalMiddleware)
	g.POST("", api.create)
	g.PUT("/:id/complete", api.complete)
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data enrollRequest
	if err := api.bind.bind(ctx, &data); err != nil {
		return err
	}
	caller := principal(ctx)
	if data.UserID == 0 {
		data.UserID = caller.UserID
	}

	enr, err := api.lifecycle.Enroll(ctx.Request().Context(), data.UserID, data.CourseID, caller)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) complete(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	enr, err := api.lifecycle.CompleteManually(ctx.Request().Context(), id, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}
