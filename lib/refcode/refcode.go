// Package refcode generates human-readable referral codes.
package refcode

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	// Prefix starts every referral code.
	Prefix = "REF-"
	// Alphabet avoids visually ambiguous characters (0/O, 1/I).
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// Length of the random part after the prefix.
	Length = 6
)

// Generate returns a random code of the form REF-XXXXXX with the six
// characters drawn uniformly from Alphabet. The result is not guaranteed
// unique; callers needing uniqueness must check against the store.
func Generate() string {
	var b strings.Builder
	b.Grow(len(Prefix) + Length)
	b.WriteString(Prefix)
	for i := 0; i < Length; i++ {
		b.WriteByte(Alphabet[rand.IntN(len(Alphabet))])
	}
	return b.String()
}

// FromTimestamp returns a deterministic fallback code derived from t: the
// base-36 unix-millisecond timestamp, upper-cased, truncated to the last
// six characters. Used when random generation keeps colliding. The result
// may contain characters outside Alphabet; callers accept that trade-off.
func FromTimestamp(t time.Time) string {
	s := strings.ToUpper(strconv.FormatInt(t.UnixMilli(), 36))
	if len(s) > Length {
		s = s[len(s)-Length:]
	}
	return Prefix + s
}

// Normalize brings a user-supplied code to storage form: trimmed and
// upper-cased. Input is matched case-insensitively throughout the service.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
