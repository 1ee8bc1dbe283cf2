package auth

import (
	"regexp"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
)

type passwordRule struct {
	pattern *regexp.Regexp
	message string
}

var passwordRules = []passwordRule{
	{regexp.MustCompile(`[A-Z]`), "Password must contain at least one uppercase letter"},
	{regexp.MustCompile(`[a-z]`), "Password must contain at least one lowercase letter"},
	{regexp.MustCompile(`[0-9]`), "Password must contain at least one number"},
	{regexp.MustCompile(`[\W_]`), "Password must contain at least one special character"},
}

// CheckPassword returns every policy rule the password violates, in a fixed order.
// An empty result means the password is acceptable.
func CheckPassword(password string) []string {
	var violations []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		violations = append(violations, "Password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordBytes {
		violations = append(violations, "Password must be at most 72 bytes long")
	}
	for _, rule := range passwordRules {
		if !rule.pattern.MatchString(password) {
			violations = append(violations, rule.message)
		}
	}
	return violations
}
