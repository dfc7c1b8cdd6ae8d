package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

// maxPrefixLen keeps generated usernames within MySQL's 32 character limit.
const maxPrefixLen = 16

// GeneratePassword creates a random 32-character hex password.
func GeneratePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GeneratePair issues fresh, distinct admin and application principals.
func GeneratePair(prefix string) (admin, app model.UserCredentials, err error) {
	prefix = usernamePrefix(prefix)

	adminPass, err := GeneratePassword()
	if err != nil {
		return admin, app, err
	}
	appPass, err := GeneratePassword()
	if err != nil {
		return admin, app, err
	}

	admin = model.UserCredentials{Username: platform.NewPrincipalName(prefix + "_adm_"), Password: adminPass}
	app = model.UserCredentials{Username: platform.NewPrincipalName(prefix + "_app_"), Password: appPass}
	return admin, app, nil
}

func usernamePrefix(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", "_"))
	if len(s) > maxPrefixLen {
		s = s[:maxPrefixLen]
	}
	if s == "" {
		s = "t"
	}
	return s
}
