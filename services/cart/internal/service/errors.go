package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidUserID = errors.New("invalid user id")

const MaxUserIDLength = 128

// ValidateUserID rejects identifiers that cannot safely become part of a store key.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUserID, MaxUserIDLength)
	}
	if strings.IndexFunc(userID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrInvalidUserID)
	}
	return nil
}
