package textutil

import (
	"strings"
	"unicode"
)

// SanitizeToken lowercases value for use in a file name. ASCII letters,
// digits, '-' and '_' survive; anything else becomes '_'. Leading and
// trailing separators are trimmed and an empty result yields "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r > unicode.MaxASCII:
			return '_'
		case unicode.IsLetter(r):
			return unicode.ToLower(r)
		case unicode.IsDigit(r), r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
