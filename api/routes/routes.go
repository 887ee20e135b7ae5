package routes

import (
	"bookstore/api/handler"
	"bookstore/api/middleware"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Echo           *echo.Echo
	Users          *handler.UserHandler
	AuthMiddleware middleware.AuthMiddleware
	AccountRate    echo.MiddlewareFunc
	LoginRate      echo.MiddlewareFunc
	Gatherer       prometheus.Gatherer
}

func NewRouter(
	e *echo.Echo,
	users *handler.UserHandler,
	authMiddleware middleware.AuthMiddleware,
	accountRate echo.MiddlewareFunc,
	loginRate echo.MiddlewareFunc,
	gatherer prometheus.Gatherer,
) *Router {
	return &Router{
		Echo:           e,
		Users:          users,
		AuthMiddleware: authMiddleware,
		AccountRate:    accountRate,
		LoginRate:      loginRate,
		Gatherer:       gatherer,
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo
	accountRate := passThrough(r.AccountRate)
	loginRate := passThrough(r.LoginRate)

	users := e.Group("/api/v1/users")
	users.POST("/register", r.Users.Register, accountRate)
	users.GET("/verify-registration", r.Users.VerifyRegistration, accountRate)
	users.GET("/resend-verify-token", r.Users.ResendVerifyToken, accountRate)
	users.POST("/forgot-password", r.Users.ForgotPassword, loginRate)
	users.GET("/reset-password", r.Users.ValidateResetToken, accountRate)
	users.POST("/reset-password", r.Users.ResetPassword, accountRate)
	users.POST("/login", r.Users.Login, loginRate)
	users.POST("/change-password", r.Users.ChangePassword, r.AuthMiddleware.RequireAuth)
	users.GET("/me", r.Users.Me, r.AuthMiddleware.RequireAuth)

	if r.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{})))
	}
}

func passThrough(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m != nil {
		return m
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}
