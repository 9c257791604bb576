package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// identityHeader carries the caller's user ID. Authentication proper is
// terminated upstream; this service trusts the header it receives.
const identityHeader = "X-User-ID"

const ctxUserKey = "ctxUser"

// identityMiddleware resolves the calling user from the identity header
// and stores the record on the request context.
func identityMiddleware(store interfaces.MessageStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(identityHeader)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingIdentity.Error())
			}
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
			}

			user, err := store.UserByID(c.Request().Context(), userID)
			if err != nil {
				if err == interfaces.ErrNotFound {
					return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "identity lookup failed")
			}

			c.Set(ctxUserKey, user)
			return next(c)
		}
	}
}

func contextUser(c echo.Context) (*types.User, bool) {
	user, ok := c.Get(ctxUserKey).(*types.User)
	return user, ok
}
