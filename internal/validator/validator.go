package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrInvalidSplitType   = errors.New("invalid split type")
	ErrInvalidDescription = errors.New("description is required")
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return ErrInvalidCurrency
	}
	return nil
}

func ValidateSplitType(splitType string) error {
	switch splitType {
	case "equal", "custom", "percentage":
		return nil
	}
	return ErrInvalidSplitType
}

func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return ErrInvalidDescription
	}
	return nil
}
