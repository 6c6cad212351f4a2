package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// User represents a registered identity. The password is only ever held
// as a bcrypt hash; plaintext never reaches the domain layer's storage form.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	passwordMinLen = 6
	nameMaxLen     = 50
)

// NormalizeUsername applies the canonical username form: trimmed, lowercase.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return fmt.Errorf("username must be %d-%d characters", usernameMinLen, usernameMaxLen)
	}
	if _, err := mail.ParseAddress(username); err != nil {
		return errors.New("username must be a valid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < passwordMinLen {
		return fmt.Errorf("password must be at least %d characters", passwordMinLen)
	}
	return nil
}

func validateName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(name) > nameMaxLen {
		return fmt.Errorf("%s must be at most %d characters", field, nameMaxLen)
	}
	return nil
}

// SignupInput carries the raw signup request fields.
type SignupInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Normalize returns a copy with canonical username and trimmed names.
func (in SignupInput) Normalize() SignupInput {
	in.Username = NormalizeUsername(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	return in
}

// Validate checks the normalized input shape. It never touches storage.
func (in SignupInput) Validate() error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if err := validateName("firstName", in.FirstName); err != nil {
		return err
	}
	return validateName("lastName", in.LastName)
}

// SigninInput carries the raw signin request fields.
type SigninInput struct {
	Username string
	Password string
}

// Normalize returns a copy with the canonical username form.
func (in SigninInput) Normalize() SigninInput {
	in.Username = NormalizeUsername(in.Username)
	return in
}

// Validate checks the normalized input shape.
func (in SigninInput) Validate() error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if in.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// UpdateInput is a partial profile update. Nil fields are left untouched.
type UpdateInput struct {
	Password  *string
	FirstName *string
	LastName  *string
}

// Normalize trims present name fields.
func (in UpdateInput) Normalize() UpdateInput {
	if in.FirstName != nil {
		trimmed := strings.TrimSpace(*in.FirstName)
		in.FirstName = &trimmed
	}
	if in.LastName != nil {
		trimmed := strings.TrimSpace(*in.LastName)
		in.LastName = &trimmed
	}
	return in
}

// Validate checks present fields; absent fields are valid by definition, so
// an empty update passes and applies as a no-op.
func (in UpdateInput) Validate() error {
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return err
		}
	}
	if in.FirstName != nil {
		if err := validateName("firstName", *in.FirstName); err != nil {
			return err
		}
	}
	if in.LastName != nil {
		if err := validateName("lastName", *in.LastName); err != nil {
			return err
		}
	}
	return nil
}
