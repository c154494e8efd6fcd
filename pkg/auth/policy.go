package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Policy is the broker's credential table: username -> bcrypt hash.
// A nil Policy means authentication is disabled.
type Policy map[string]string

// NewPolicy hashes plaintext credentials.
func NewPolicy(users map[string]string) (Policy, error) {
	if len(users) == 0 {
		return nil, nil
	}
	p := make(Policy, len(users))
	for user, pass := range users {
		hash, err := HashPassword(pass)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", user, err)
		}
		p[user] = hash
	}
	return p, nil
}

// ParseUsers reads "user:pass,user2:pass2".
func ParseUsers(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		user, pass, ok := strings.Cut(part, ":")
		if !ok || user == "" || pass == "" {
			return nil, fmt.Errorf("invalid credential %q (want user:pass)", part)
		}
		out[user] = pass
	}
	return out, nil
}

func HashPassword(pass string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Enabled reports whether the policy carries any credentials.
func (p Policy) Enabled() bool {
	return len(p) > 0
}

// Verify checks a username/password pair against the table.
func (p Policy) Verify(user, pass string) bool {
	hash, ok := p[user]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
}

// Clone copies the table so callers can hand it out safely.
func (p Policy) Clone() Policy {
	if p == nil {
		return nil
	}
	out := make(Policy, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
