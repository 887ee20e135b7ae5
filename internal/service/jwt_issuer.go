package service

import (
	"time"

	"bookstore/internal/entity"
	"bookstore/internal/utils"
)

type JWTAccessIssuer struct {
	Manager *utils.JWTManager
}

func (j JWTAccessIssuer) IssueAccessToken(user entity.User) (string, time.Duration, error) {
	if j.Manager == nil {
		return "", 0, ErrInvalidCredentials
	}
	return j.Manager.IssueAccessToken(user.ID.String(), user.Email, string(user.Role))
}
