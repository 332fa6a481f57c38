package store

import "strings"

// commandToken triggers the AI path. Both the forward-slash form and the
// backslash form (common typo) are accepted.
const commandToken = "askAI"

var commandPrefixes = []string{
	"/" + commandToken + " ",
	`\` + commandToken + " ",
}

// ParseAICommand reports whether text is an AI invocation and returns the
// query following the command token.
func ParseAICommand(text string) (string, bool) {
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(text[len(prefix):]), true
		}
	}
	return "", false
}
