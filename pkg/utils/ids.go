// backend/pkg/utils/ids.go
package utils

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewCorrelationID generates the unique token linking a request, its
// solution and any later feedback.
func NewCorrelationID() string {
	return uuid.NewString()
}

// GenerateSessionID generates a session ID based on input string
func GenerateSessionID(input string) string {
	// Hash of the input combined with the current hour
	hash := md5.Sum([]byte(input + fmt.Sprintf("%d", time.Now().Unix()/3600)))
	return hex.EncodeToString(hash[:])[:16]
}

// MD5Hash generates MD5 hash of input string
func MD5Hash(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}

// GenerateRandomID generates a random ID
func GenerateRandomID(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)[:length]
}

// ValidateCorrelationID reports whether id parses as a UUID.
func ValidateCorrelationID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
