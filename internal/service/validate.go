package service

import (
	"fmt"
	"net/mail"
	"regexp"
	"unicode/utf8"
)

// Field limits.
const (
	MaxUsernameLength = 150
	MaxNameLength     = 150
	MaxEmailLength    = 254
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]+$`)

func maxLengthMsg(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func minLengthMsg(n int) string {
	return fmt.Sprintf("Ensure this field has at least %d characters.", n)
}

// validateUsername adds messages for an invalid username value.
func validateUsername(v *ValidationError, username string) {
	switch {
	case username == "":
		v.Add("username", msgBlank)
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		v.Add("username", maxLengthMsg(MaxUsernameLength))
	case !usernamePattern.MatchString(username):
		v.Add("username", msgUsernameInvalid)
	}
}

// validatePassword adds messages for an unacceptable raw password.
func validatePassword(v *ValidationError, password string, minLength int) {
	switch {
	case password == "":
		v.Add("password", msgBlank)
	case minLength > 0 && utf8.RuneCountInString(password) < minLength:
		v.Add("password", minLengthMsg(minLength))
	}
}

// validateEmail accepts the empty string; anything else must be a bare address.
func validateEmail(v *ValidationError, email string) {
	if email == "" {
		return
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		v.Add("email", maxLengthMsg(MaxEmailLength))
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		v.Add("email", msgEmailInvalid)
	}
}

func validateName(v *ValidationError, field, value string) {
	if utf8.RuneCountInString(value) > MaxNameLength {
		v.Add(field, maxLengthMsg(MaxNameLength))
	}
}
