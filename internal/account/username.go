package account

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/thidima/fedlink/internal/store"
)

const maxUsernameAttempts = 1000

// UsernameChecker reports whether a username is taken in a tenant.
type UsernameChecker interface {
	UsernameExists(ctx context.Context, arg store.UsernameExistsParams) (bool, error)
}

// GenerateUsername derives a username from the first name, falling back to
// the email local part, and appends 2, 3, ... until it is free in the tenant.
func GenerateUsername(ctx context.Context, q UsernameChecker, tenantID uuid.UUID, firstName, email string) (string, error) {
	base := usernameBase(firstName, email)
	for i := 1; i <= maxUsernameAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = base + strconv.Itoa(i)
		}
		taken, err := q.UsernameExists(ctx, store.UsernameExistsParams{TenantID: tenantID, Username: candidate})
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free username for %q after %d attempts", base, maxUsernameAttempts)
}

func usernameBase(firstName, email string) string {
	if b := slug(firstName); b != "" {
		return b
	}
	local, _, _ := strings.Cut(email, "@")
	if b := slug(local); b != "" {
		return b
	}
	return "user"
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
