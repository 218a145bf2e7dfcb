// Package uuid provides identifier generation for sync records.
package uuid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

var offlineIDRegex = regexp.MustCompile(`^offline_\d+_[0-9a-f]{8}$`)

// New generates a new UUID v4, used for queue items and conflict records.
func New() string {
	return uuid.New().String()
}

// NewOfflineID generates an identifier for a record captured offline.
// The shape is offline_<epoch millis>_<random suffix>: the timestamp keeps
// ids roughly sortable by creation time, the suffix makes collisions within
// the same millisecond practically impossible.
func NewOfflineID() string {
	suffix := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("offline_%d_%s", time.Now().UnixMilli(), suffix)
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsOfflineID checks if a string has the offline record id shape.
func IsOfflineID(s string) bool {
	return offlineIDRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4: %q", s)
	}
	return nil
}
