package utils

import "strings"

// CanonicalAccountKey derives the chat-service account id from a raw
// user-facing identifier such as a phone number. Runs of non-alphanumeric
// characters collapse to a single underscore, leading/trailing underscores
// are trimmed, and a "user_" prefix is added when the result would not
// start with an alphanumeric character.
func CanonicalAccountKey(identity string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range identity {
		if isAlphanumeric(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	key := strings.Trim(b.String(), "_")
	if key == "" {
		return "user_"
	}
	if !isAlphanumeric(rune(key[0])) {
		key = "user_" + key
	}
	return key
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
