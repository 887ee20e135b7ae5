package middleware

import (
	"bookstore/internal/entity"
	"bookstore/internal/service"

	"github.com/labstack/echo/v4"
)

const contextPrincipalKey = "auth_principal"

func SetPrincipal(c echo.Context, principal service.Principal) {
	c.Set(contextPrincipalKey, principal)
}

// PrincipalFromContext returns the caller set by RequireAuth. Handlers pass
// it on to the service explicitly.
func PrincipalFromContext(c echo.Context) (service.Principal, bool) {
	principal, ok := c.Get(contextPrincipalKey).(service.Principal)
	return principal, ok
}

func principalFromClaims(userID, email, role string) service.Principal {
	return service.Principal{UserID: userID, Email: email, Role: entity.UserRole(role)}
}
