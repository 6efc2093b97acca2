package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/juniordw/rotasi-lms-sub000/core/progress"
)

type lessonApi struct {
	bind    binder
	tracker *progress.Tracker
}

type completeLessonRequest struct {
	TimeSpentMinutes *int `json:"time_spent_minutes" validate:"omitempty,gte=0"`
}

func registerLessonAPI(app *echo.Echo, jwt echo.MiddlewareFunc, bind binder, tracker *progress.Tracker) {
	api := lessonApi{bind: bind, tracker: tracker}

	g := app.Group("/lessons", jwt, principalMiddleware)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id/complete", api.complete)
}

func (api *lessonApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	view, err := api.tracker.ViewLesson(ctx.Request().Context(), id, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *lessonApi) complete(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data completeLessonRequest
	if err = api.bind.bind(ctx, &data); err != nil {
		return err
	}
	var minutes int
	if data.TimeSpentMinutes != nil {
		minutes = *data.TimeSpentMinutes
	}

	view, err := api.tracker.CompleteLesson(ctx.Request().Context(), id, minutes, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}
