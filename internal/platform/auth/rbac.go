package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Station roles. Admin implicitly satisfies every check.
const (
	RoleAdmin     = "admin"
	RoleReception = "reception"
	RolePhysician = "physician"
	RoleLab       = "lab"
	RoleNurse     = "nurse"
)

// RequireRole returns middleware that admits callers holding at least one of
// the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
