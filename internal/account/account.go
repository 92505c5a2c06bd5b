// Package account validates lock owner identifiers and derives the synthetic ids used
// by bulk enrollment.
package account

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/order_stake/internal/ledger"
)

const (
	// MinLength is the shortest valid account id.
	MinLength = 2
	// MaxLength is the longest valid account id; Synthetic truncates to it.
	MaxLength = 64
)

// Validate checks id against the account naming rules of the host chain: 2 to 64
// characters of lowercase letters and digits, with '-', '_' or '.' allowed only between
// them.
func Validate(id string) error {
	if len(id) < MinLength || len(id) > MaxLength {
		return fmt.Errorf("%w: account id %q must be %d-%d characters", ledger.ErrInvalidArgument, id, MinLength, MaxLength)
	}
	prevSep := true // a leading separator is rejected
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '-' || c == '_' || c == '.':
			if prevSep {
				return fmt.Errorf("%w: account id %q has a misplaced separator at %d", ledger.ErrInvalidArgument, id, i)
			}
			prevSep = true
		default:
			return fmt.Errorf("%w: account id %q contains invalid character %q", ledger.ErrInvalidArgument, id, c)
		}
	}
	if prevSep {
		return fmt.Errorf("%w: account id %q ends with a separator", ledger.ErrInvalidArgument, id)
	}
	return nil
}

// Synthetic derives the id for enrollment number n: the decimal number followed by
// suffix, cut to MaxLength characters and lowercased.
func Synthetic(n uint64, suffix string) ledger.AccountID {
	id := strconv.FormatUint(n, 10) + suffix
	if len(id) > MaxLength {
		id = id[:MaxLength]
	}
	return ledger.AccountID(strings.ToLower(id))
}

// RandomSuffix returns a fresh 32 character hex suffix so repeated enrollments over
// overlapping ranges do not collide.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
