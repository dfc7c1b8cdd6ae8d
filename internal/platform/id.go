// Package platform holds identifier generation shared by the control plane
// and the credential generator.
package platform

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const principalSuffixLen = 10

// NewTenantID returns a time-ordered UUID so tenant rows cluster by creation
// order in the core database's primary key index.
func NewTenantID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewPrincipalName returns prefix followed by ten random characters from
// [a-z2-7]. The result is a valid unquoted login name on PostgreSQL, SQL
// Server and MySQL.
func NewPrincipalName(prefix string) string {
	return prefix + strings.ToLower(rand.Text()[:principalSuffixLen])
}
