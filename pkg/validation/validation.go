package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	MaxRoomNameLength  = 100
	MaxReferenceLength = 2048
)

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if err := ValidateStringLength(username, 3, 50, "username"); err != nil {
		return err
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters")
	}
	return ValidateStringLength(name, 1, MaxRoomNameLength, "room name")
}

// ValidateID checks that id is a canonical UUID, as allocated for rooms.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidateReference performs the checks every source kind shares; whether a
// parser accepts the reference is decided by the ingest registry.
func ValidateReference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("reference is required")
	}
	if len(ref) > MaxReferenceLength {
		return fmt.Errorf("reference is too long (max %d bytes)", MaxReferenceLength)
	}
	if strings.ContainsAny(ref, " \t\r\n") {
		return fmt.Errorf("reference must not contain whitespace")
	}
	return nil
}

func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
