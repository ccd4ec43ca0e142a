package screens

import (
	"context"
	"strings"

	"finetune-console/internal/router"
	"finetune-console/pkg/api"
)

const minPasswordLength = 6

type Login struct {
	status

	UsernameOrEmail string
	Password        string
	RememberMe      bool

	auth     AuthService
	sessions SessionWriter
	nav      Navigator
}

func NewLogin(auth AuthService, sessions SessionWriter, nav Navigator) *Login {
	return &Login{auth: auth, sessions: sessions, nav: nav}
}

func (s *Login) Submit(ctx context.Context) error {
	if strings.TrimSpace(s.UsernameOrEmail) == "" {
		return s.invalid("username_or_email", "username or email is required")
	}
	if s.Password == "" {
		return s.invalid("password", "password is required")
	}

	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	gen := s.nav.Generation()

	res, err := s.auth.Login(ctx, api.LoginRequest{
		UsernameOrEmail: strings.TrimSpace(s.UsernameOrEmail),
		Password:        s.Password,
		RememberMe:      s.RememberMe,
	})
	if err != nil {
		return s.fail(err, "login failed")
	}

	if err := s.sessions.SetSession(res.Credential(), res.User); err != nil {
		return s.fail(err, "login failed")
	}

	s.Password = ""
	s.nav.NavigateFrom(gen, router.PathTasks)
	return nil
}

type Register struct {
	status

	Username        string
	Email           string
	Password        string
	ConfirmPassword string

	auth AuthService
	nav  Navigator
}

func NewRegister(auth AuthService, nav Navigator) *Register {
	return &Register{auth: auth, nav: nav}
}

func (s *Register) Submit(ctx context.Context) error {
	switch {
	case strings.TrimSpace(s.Username) == "":
		return s.invalid("username", "username is required")
	case strings.TrimSpace(s.Email) == "":
		return s.invalid("email", "email is required")
	case s.Password == "":
		return s.invalid("password", "password is required")
	case s.Password != s.ConfirmPassword:
		return s.invalid("confirm_password", "passwords do not match")
	case len(s.Password) < minPasswordLength:
		return s.invalid("password", "password must be at least 6 characters")
	}

	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	gen := s.nav.Generation()

	err := s.auth.Register(ctx, api.RegisterRequest{
		Username: strings.TrimSpace(s.Username),
		Email:    strings.TrimSpace(s.Email),
		Password: s.Password,
	})
	if err != nil {
		return s.fail(err, "registration failed")
	}

	s.Password, s.ConfirmPassword = "", ""
	s.nav.NavigateFrom(gen, router.PathLogin)
	return nil
}
