package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"bloggers-platform/backend/internal/autherr"
)

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)
	emailPattern = regexp.MustCompile(`^[\w.-]+@([\w-]+\.)+[\w-]{2,4}$`)
)

const (
	loginMinLen    = 3
	loginMaxLen    = 10
	passwordMinLen = 6
	passwordMaxLen = 20
)

func validateLogin(v *autherr.ValidationError, login string) {
	n := utf8.RuneCountInString(login)
	switch {
	case strings.TrimSpace(login) == "":
		v.Add("login", "login is required")
	case n < loginMinLen || n > loginMaxLen:
		v.Add("login", "login must be between 3 and 10 characters")
	case !loginPattern.MatchString(login):
		v.Add("login", "login may contain only letters, digits, '_' and '-'")
	}
}

func validatePassword(v *autherr.ValidationError, field, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case strings.TrimSpace(password) == "":
		v.Add(field, "password is required")
	case n < passwordMinLen || n > passwordMaxLen:
		v.Add(field, "password must be between 6 and 20 characters")
	}
}

func validateEmail(v *autherr.ValidationError, email string) {
	switch {
	case strings.TrimSpace(email) == "":
		v.Add("email", "email is required")
	case !emailPattern.MatchString(strings.TrimSpace(email)):
		v.Add("email", "invalid email format")
	}
}

// errOrNil returns v as an error only when it recorded something.
func errOrNil(v *autherr.ValidationError) error {
	if v.Empty() {
		return nil
	}
	return v
}
