package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func staffMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.claims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsStaff {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
