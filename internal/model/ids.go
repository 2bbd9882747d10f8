package model

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a new globally unique entity id.
// IDs are generated client-side so entities can be created offline.
func NewID() string {
	return uuid.NewString()
}

// shareCodeAlphabet omits 0/O/1/I/L to keep codes unambiguous when read
// aloud or typed from a phone.
const shareCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// ShareCodeLength is the length of generated trip share codes.
const ShareCodeLength = 6

// NewShareCode generates a random trip share code.
func NewShareCode() string {
	buf := make([]byte, ShareCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to uuid bytes rather than returning an error from
		// every trip constructor.
		copy(buf, uuid.NewString())
	}
	for i, b := range buf {
		buf[i] = shareCodeAlphabet[int(b)%len(shareCodeAlphabet)]
	}
	return string(buf)
}

// NormalizeShareCode uppercases and trims a user-entered share code.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateShareCode checks that a share code has the expected shape.
func ValidateShareCode(code string) error {
	code = NormalizeShareCode(code)
	if len(code) != ShareCodeLength {
		return fmt.Errorf("share code must be %d characters (got %d)", ShareCodeLength, len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(shareCodeAlphabet, r) {
			return fmt.Errorf("share code contains invalid character %q", r)
		}
	}
	return nil
}
