package push

import (
	"regexp"
	"strings"
)

// Provider token syntax: ExpoPushToken[...] or ExponentPushToken[...].
var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[A-Za-z0-9+/=_-]+\]$`)

// IsValidToken reports whether token is syntactically acceptable to the
// delivery provider. It says nothing about whether the token is still live.
func IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	return tokenPattern.MatchString(token)
}
