package service

import "time"

type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// ResetPasswordInput accepts the token from the query string or the body;
// the query string wins when both are present.
type ResetPasswordInput struct {
	QueryToken      string
	BodyToken       string
	Password        string
	ConfirmPassword string
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress *string
}

type LoginResult struct {
	AccessToken string
	ExpiresIn   int64
}

type ResetTokenDetails struct {
	Email     string
	ExpiredAt time.Time
}
