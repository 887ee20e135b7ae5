package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bookstore/api/middleware"
	"bookstore/internal/dto"
	"bookstore/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	registeredMessage     = "Registration successful. Please check your email to verify your account."
	verifiedMessage       = "Your account has been verified. You can now log in."
	resentMessage         = "A new verification email has been sent."
	forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."
	resetMessage          = "Your password has been reset."
	changedMessage        = "Your password has been changed."
)

type UserHandler struct {
	Service  *service.AccountService
	Validate *validator.Validate
	Logger   logrus.FieldLogger
}

func NewUserHandler(svc *service.AccountService, validate *validator.Validate, logger logrus.FieldLogger) *UserHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserHandler{Service: svc, Validate: validate, Logger: logger}
}

func (h *UserHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	}
	input := service.RegisterInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}
	if _, err := h.Service.RegisterUser(c.Request().Context(), input); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: registeredMessage})
}

func (h *UserHandler) VerifyRegistration(c echo.Context) error {
	if err := h.Service.VerifyRegistration(c.Request().Context(), c.QueryParam("token")); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: verifiedMessage})
}

func (h *UserHandler) ResendVerifyToken(c echo.Context) error {
	email := c.QueryParam("email")
	if err := h.Service.ResendVerificationToken(c.Request().Context(), email); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: resentMessage})
}

func (h *UserHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	}
	input := service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: stringPtr(c.RealIP()),
	}
	result, err := h.Service.Login(c.Request().Context(), input)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.LoginResponse{AccessToken: result.AccessToken, ExpiresIn: result.ExpiresIn})
}

// ForgotPassword always answers with the same message so callers cannot
// discover which emails are registered.
func (h *UserHandler) ForgotPassword(c echo.Context) error {
	var req dto.ForgotPasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	}
	if err := h.Service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrValidationFailed) {
			return h.writeServiceError(c, err)
		}
		h.Logger.WithError(err).Error("password reset request failed")
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: forgotPasswordMessage})
}

func (h *UserHandler) ValidateResetToken(c echo.Context) error {
	details, err := h.Service.ValidateResetToken(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ResetTokenResponse{Email: details.Email, ExpiredAt: details.ExpiredAt})
}

func (h *UserHandler) ResetPassword(c echo.Context) error {
	var req dto.ResetPasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	}
	input := service.ResetPasswordInput{
		QueryToken:      c.QueryParam("token"),
		BodyToken:       req.Token,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}
	if err := h.Service.ResetPassword(c.Request().Context(), input); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: resetMessage})
}

func (h *UserHandler) ChangePassword(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", errors.New("unauthorized"))
	}
	var req dto.ChangePasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "INVALID_BODY", err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	}
	input := service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}
	if err := h.Service.ChangePassword(c.Request().Context(), principal, input); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: changedMessage})
}

func (h *UserHandler) Me(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", errors.New("unauthorized"))
	}
	user, err := h.Service.GetCurrentUser(c.Request().Context(), principal)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *UserHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *UserHandler) writeServiceError(c echo.Context, err error) error {
	var rateLimit *service.RateLimitError
	if errors.As(err, &rateLimit) {
		return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Message:          rateLimit.Error(),
			Code:             "RATE_LIMITED",
			SecondsRemaining: rateLimit.SecondsRemaining,
		})
	}

	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, service.ErrValidationFailed):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, service.ErrUserAlreadyExists):
		status, code = http.StatusConflict, "USER_ALREADY_EXISTS"
	case errors.Is(err, service.ErrUserNotFound):
		status, code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, service.ErrTokenNotFound):
		status, code = http.StatusNotFound, "TOKEN_NOT_FOUND"
	case errors.Is(err, service.ErrTokenExpired):
		status, code = http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, service.ErrUserAlreadyEnabled):
		status, code = http.StatusBadRequest, "USER_ALREADY_VERIFIED"
	case errors.Is(err, service.ErrInvalidPassword):
		status, code = http.StatusBadRequest, "INVALID_PASSWORD"
	case errors.Is(err, service.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, service.ErrUserNotEnabled):
		status, code = http.StatusForbidden, "USER_NOT_VERIFIED"
	case errors.Is(err, service.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "RATE_LIMITED"
	}
	if status == http.StatusInternalServerError {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"uri":    c.Request().RequestURI,
		}).Error("unhandled service error")
		return writeError(c, status, code, errors.New("internal server error"))
	}
	return writeError(c, status, code, err)
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func writeError(c echo.Context, status int, code string, err error) error {
	return c.JSON(status, dto.ErrorResponse{Message: err.Error(), Code: code})
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
