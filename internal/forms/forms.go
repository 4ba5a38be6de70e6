// Package forms validates user input before anything reaches the remote store.
package forms

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notesapp/internal/apperr"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,19}$`)

// NoteInput is the title/content pair submitted for a create or update.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate requires both fields to be non-empty after trimming whitespace.
func (n NoteInput) Validate() error {
	title := strings.TrimSpace(n.Title)
	content := strings.TrimSpace(n.Content)
	return apperr.NewValidation(validation.Errors{
		"title":   validation.Validate(title, validation.Required.Error("title is required")),
		"content": validation.Validate(content, validation.Required.Error("content is required")),
	}.Filter())
}

// SignUp is the registration form.
type SignUp struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// FullName joins the trimmed first and last names.
func (f SignUp) FullName() string {
	return strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName)
}

// Validate checks every sign-up field.
func (f SignUp) Validate() error {
	first := strings.TrimSpace(f.FirstName)
	last := strings.TrimSpace(f.LastName)
	email := strings.TrimSpace(f.Email)
	phone := strings.TrimSpace(f.Phone)

	return apperr.NewValidation(validation.Errors{
		"first_name": validation.Validate(first, validation.Required.Error("first name is required")),
		"last_name":  validation.Validate(last, validation.Required.Error("last name is required")),
		"email": validation.Validate(email,
			validation.Required.Error("please enter a valid email address"),
			is.EmailFormat.Error("please enter a valid email address")),
		"phone": validation.Validate(phone,
			validation.Required.Error("phone number is required"),
			validation.Match(phoneRe).Error("phone number is malformed")),
		"password": validation.Validate(f.Password,
			validation.Required.Error("password is required"),
			validation.RuneLength(MinPasswordLength, 0).Error("password must be at least 6 characters long")),
		"confirm_password": validation.Validate(f.ConfirmPassword, validation.By(func(any) error {
			if f.ConfirmPassword != f.Password {
				return errors.New("passwords do not match")
			}
			return nil
		})),
	}.Filter())
}

// SignIn is the credentials form.
type SignIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the email format and that a password was given.
func (f SignIn) Validate() error {
	email := strings.TrimSpace(f.Email)
	return apperr.NewValidation(validation.Errors{
		"email": validation.Validate(email,
			validation.Required.Error("please enter a valid email address"),
			is.EmailFormat.Error("please enter a valid email address")),
		"password": validation.Validate(strings.TrimSpace(f.Password),
			validation.Required.Error("password is required")),
	}.Filter())
}
