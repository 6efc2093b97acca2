package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/juniordw/rotasi-lms-sub000/core/grading"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
)

type quizApi struct {
	bind    binder
	engine  *quiz.Engine
	grading *grading.Service
}

type (
	submitQuizRequest struct {
		Answers []quiz.AnswerInput `json:"answers" validate:"omitempty,dive"` // may be empty when the quiz has no questions
	}

	gradeQuizRequest struct {
		Grades []grading.Grade `json:"grades" validate:"required,min=1,dive"`
	}

	recomputeRequest struct {
		EnrollmentID int64 `json:"enrollment_id" validate:"required,gt=0"`
	}
)

func registerQuizAPI(app *echo.Echo, jwt echo.MiddlewareFunc, bind binder, engine *quiz.Engine, grader *grading.Service) {
	api := quizApi{bind: bind, engine: engine, grading: grader}

	g := app.Group("/quizzes", jwt, principalMiddleware)
	g.GET("/:id", api.retrieve)
	g.POST("/:id/submit", api.submit)
	g.PUT("/:id/grade", api.grade)
	g.POST("/:id/recompute", api.recompute)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	view, err := api.engine.GetQuiz(ctx.Request().Context(), id, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *quizApi) submit(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data submitQuizRequest
	if err = api.bind.bind(ctx, &data); err != nil {
		return err
	}

	res, err := api.engine.SubmitAs(ctx.Request().Context(), id, data.Answers, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *quizApi) grade(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data gradeQuizRequest
	if err = api.bind.bind(ctx, &data); err != nil {
		return err
	}

	results, err := api.grading.GradeEssays(ctx.Request().Context(), id, data.Grades, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "submissions graded", "results": results})
}

func (api *quizApi) recompute(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data recomputeRequest
	if err = api.bind.bind(ctx, &data); err != nil {
		return err
	}

	res, err := api.engine.Recompute(ctx.Request().Context(), data.EnrollmentID, id, principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
