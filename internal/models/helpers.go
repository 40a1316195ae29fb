package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// GenerateOrderNumber returns a human readable order number such as
// ORD-20250301-9F1C2A7B. The random part comes from a v4 UUID.
func GenerateOrderNumber(at time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")

	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}

// StringPtr returns nil for empty strings
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
