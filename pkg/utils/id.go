package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a random UUIDv4, prefixed as "<prefix>_<uuid>" when
// prefix is non-empty.
func GenerateID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

func GenerateRequestID() string {
	return GenerateID("req")
}

// GenerateListenerID is compact because it appears in every stream log line.
func GenerateListenerID() string {
	return "lis_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
