package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/codefionn/turing/internal/consts"
)

// Limits bounds what clients may create.
type Limits struct {
	MaxSections     int
	MaxDocumentName int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSections:     consts.DefaultMaxSections,
		MaxDocumentName: consts.DefaultMaxDocumentNameLength,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Names become storage keys: a single path element that is not a dot-file.
	_ = v.RegisterValidation("pathsafe", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return !strings.HasPrefix(s, ".") && !strings.ContainsAny(s, `/\`)
	})
	return v
}

var (
	usernameRule = fmt.Sprintf("min=%d,max=%d,pathsafe", consts.MinUsernameLength, consts.MaxCredentialLength)
	passwordRule = fmt.Sprintf("min=%d,max=%d", consts.MinPasswordLength, consts.MaxCredentialLength)
)

func validateUsername(name string) error {
	if err := validate.Var(name, usernameRule); err != nil {
		return newError(InvalidUsername, "username %s", describe(err))
	}
	return nil
}

func validatePassword(password string) error {
	if err := validate.Var(password, passwordRule); err != nil {
		return newError(InvalidPassword, "password %s", describe(err))
	}
	return nil
}

func (l Limits) validateDocument(name string, sections int) error {
	if err := validate.Var(name, fmt.Sprintf("required,max=%d,pathsafe", l.MaxDocumentName)); err != nil {
		return newError(InvalidRequest, "document name %s", describe(err))
	}
	if err := validate.Var(sections, fmt.Sprintf("min=1,max=%d", l.MaxSections)); err != nil {
		return newError(InvalidRequest, "section count must be between 1 and %d", l.MaxSections)
	}
	return nil
}

// describe turns the first validation failure into a readable phrase.
func describe(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "is invalid"
	}
	e := errs[0]
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "pathsafe":
		return `must not contain "/" or "\" or start with "."`
	default:
		return "is invalid"
	}
}
