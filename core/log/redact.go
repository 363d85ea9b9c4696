package log

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// RedactionMode controls how paths and user ids appear in access logs.
type RedactionMode int

const (
	// RedactHash replaces values with a short hash
	RedactHash RedactionMode = iota
	// RedactTruncate keeps the head and tail of long values
	RedactTruncate
	// RedactNone logs values verbatim
	RedactNone
)

// ParseRedactionMode accepts "hash", "truncate" and "none".
func ParseRedactionMode(s string) (RedactionMode, error) {
	switch strings.ToLower(s) {
	case "hash", "production":
		return RedactHash, nil
	case "truncate", "development":
		return RedactTruncate, nil
	case "none", "debug":
		return RedactNone, nil
	}
	return RedactHash, fmt.Errorf("unknown redaction mode %q", s)
}

// Path redacts a file path.
func (m RedactionMode) Path(path string) string {
	if path == "" {
		return ""
	}

	switch m {
	case RedactTruncate:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case RedactNone:
		return path
	default:
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// UserID redacts a caller identity.
func (m RedactionMode) UserID(userID string) string {
	if userID == "" {
		return ""
	}

	switch m {
	case RedactTruncate:
		if len(userID) <= 8 {
			return userID
		}
		return userID[:4] + "****"
	case RedactNone:
		return userID
	default:
		hash := sha256.Sum256([]byte(userID))
		return fmt.Sprintf("user_hash:%x", hash[:6])
	}
}
