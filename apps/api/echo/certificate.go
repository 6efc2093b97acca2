package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
)

type certificateApi struct {
	bind   binder
	issuer *certificate.Issuer
}

type (
	generateCertificateRequest struct {
		CourseID int64 `json:"course_id" validate:"required,gt=0"`
		UserID   int64 `json:"user_id" validate:"omitempty,gt=0"` // defaults to the caller
	}

	verifyCertificateRequest struct {
		CertificateID string `json:"certificate_id" validate:"required,notblank"`
	}
)

func registerCertificateAPI(app *echo.Echo, jwt echo.MiddlewareFunc, bind binder, issuer *certificate.Issuer) {
	api := certificateApi{bind: bind, issuer: issuer}

	g := app.Group("/certificates")

	// un-authed endpoints
	g.POST("/verify", api.verify)

	// authed endpoints
	ag := g.Group("", jwt, principalMiddleware)
	ag.GET("", api.query)
	ag.POST("/generate", api.generate)
	ag.GET("/:id", api.retrieve)
	ag.GET("/:id/download", api.download)
}

func (api *certificateApi) query(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	certs, err := api.issuer.List(ctx.Request().Context(), principal(ctx), ord.Orderings...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) generate(ctx echo.Context) error {
	var data generateCertificateRequest
	if err := api.bind.bind(ctx, &data); err != nil {
		return err
	}
	caller := principal(ctx)
	if data.UserID == 0 {
		data.UserID = caller.UserID
	}

	cert, err := api.issuer.Issue(ctx.Request().Context(), data.UserID, data.CourseID, caller)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	cert, err := api.issuer.Get(ctx.Request().Context(), ctx.Param("id"), principal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) download(ctx echo.Context) error {
	art, err := api.issuer.Download(ctx.Request().Context(), ctx.Param("id"), principal(ctx))
	if err == certificate.ErrPending {
		ctx.Response().Header().Set("Retry-After", "5")
		return ctx.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "status": certificate.StatusPending})
	}
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", art.Filename))
	return ctx.Blob(http.StatusOK, art.ContentType, art.Content)
}

func (api *certificateApi) verify(ctx echo.Context) error {
	var data verifyCertificateRequest
	if err := api.bind.bind(ctx, &data); err != nil {
		return err
	}
	v, err := api.issuer.Verify(ctx.Request().Context(), data.CertificateID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, v)
}
