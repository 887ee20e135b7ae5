package utils

import (
	"errors"
	"unicode"
)

const MinPasswordLength = 8

var (
	ErrPasswordMismatch = errors.New("password and confirmation do not match")
	ErrWeakPassword     = errors.New("password must be at least 8 characters and contain upper and lower case letters, a digit and a special character")
)

// PasswordsMatch compares a password with its confirmation field.
func PasswordsMatch(password string, confirmation string) bool {
	return password == confirmation
}

func CheckPasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

// ValidateNewPassword runs the confirmation and strength checks shared by
// registration, reset and change.
func ValidateNewPassword(password string, confirmation string) error {
	if !PasswordsMatch(password, confirmation) {
		return ErrPasswordMismatch
	}
	return CheckPasswordStrength(password)
}
