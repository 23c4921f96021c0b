package services

import (
	"errors"
	"strings"

	"accounts/internal/common"

	"github.com/go-playground/validator/v10"
)

const (
	msgFillRequired   = "Please fill in all required fields"
	msgInvalidEmail   = "Please enter a valid email"
	msgPasswordLength = "Password must be between 6 and 23 characters"
	msgBioLength      = "Bio must not be more than 250 characters"
)

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=23"`
}

// LoginInput is the payload of a login.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput carries the profile fields to change. Nil means unchanged.
type UpdateProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`
	Bio   *string `json:"bio" validate:"omitempty,max=250"`
	Photo *string `json:"photo" validate:"omitempty,max=512"`
}

// ChangePasswordInput is the payload of a password change.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	Password    string `json:"password" validate:"required,min=6,max=23"`
}

// ForgotPasswordInput is the payload of a forgot-password request.
type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required"`
}

// ResetPasswordInput is the payload of a password reset.
type ResetPasswordInput struct {
	Password string `json:"password" validate:"required,min=6,max=23"`
}

var (
	registerMessages = map[string]string{
		"Email.email":  msgInvalidEmail,
		"Password.min": msgPasswordLength,
		"Password.max": msgPasswordLength,
		"Name.max":     "Name must not be more than 100 characters",
	}
	loginMessages = map[string]string{
		"Email.required":    "Please add email and password",
		"Password.required": "Please add email and password",
	}
	updateProfileMessages = map[string]string{
		"Bio.max":   msgBioLength,
		"Name.max":  "Name must not be more than 100 characters",
		"Phone.max": "Phone must not be more than 32 characters",
		"Photo.max": "Photo URL is too long",
	}
	changePasswordMessages = map[string]string{
		"OldPassword.required": "Please add old and new password",
		"Password.required":    "Please add old and new password",
		"Password.min":         msgPasswordLength,
		"Password.max":         msgPasswordLength,
	}
	forgotPasswordMessages = map[string]string{
		"Email.required": "Please add an email",
	}
	resetPasswordMessages = map[string]string{
		"Password.required": "Please add a new password",
		"Password.min":      msgPasswordLength,
		"Password.max":      msgPasswordLength,
	}
)

// validateInput runs struct validation and converts the first failure into a
// BadRequest carrying a user-facing message.
func validateInput(v *validator.Validate, input interface{}, messages map[string]string) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return common.BadRequest("Invalid request data")
	}

	fe := validationErrors[0]
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return common.BadRequest(msg)
	}
	if fe.Tag() == "required" {
		return common.BadRequest(msgFillRequired)
	}
	return common.BadRequest("Invalid value for " + strings.ToLower(fe.Field()))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
