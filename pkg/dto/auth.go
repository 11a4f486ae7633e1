package dto

import (
	"errors"
	"fmt"
	"strings"
)

type Auth struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a Auth) IsValid() error {
	var loginErr, passwordErr error

	if strings.TrimSpace(a.Login) == "" {
		loginErr = fmt.Errorf("login is required")
	}

	if strings.TrimSpace(a.Password) == "" {
		passwordErr = fmt.Errorf("password is required")
	}

	return errors.Join(loginErr, passwordErr)
}

type Register struct {
	Login         string `json:"login"`
	Password      string `json:"password"`
	GatewayUserID int64  `json:"gateway_user_id"`
}

func (r Register) IsValid() error {
	var gatewayErr error

	if r.GatewayUserID <= 0 {
		gatewayErr = fmt.Errorf("gateway_user_id is required")
	}

	return errors.Join(Auth{Login: r.Login, Password: r.Password}.IsValid(), gatewayErr)
}
