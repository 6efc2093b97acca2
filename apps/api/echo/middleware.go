package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core/policy"
)

const contextPrincipalKey = "principal"

// principalMiddleware resolves the request principal once the JWT is verified.
func principalMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return errors.Wrap(err, "getting principal")
		}
		ctx.Set(contextPrincipalKey, p)
		return next(ctx)
	}
}

func principal(ctx echo.Context) policy.Principal {
	p, _ := ctx.Get(contextPrincipalKey).(policy.Principal)
	return p
}
