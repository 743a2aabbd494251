package rules

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxEvidence = 64

// snippet cuts value to at most maxEvidence bytes without splitting a rune
// and masks secrets in what is left.
func snippet(value []byte) string {
	if len(value) > maxEvidence {
		n := maxEvidence
		for n > 0 && !utf8.RuneStart(value[n]) {
			n--
		}
		value = value[:n]
	}
	return RedactSecrets(string(value))
}

var (
	secretKVPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|api[_-]?key|secret)\s*=\s*([^\s&]+)`)
	secretBearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/\\-]+=*`)
)

// RedactSecrets masks credential-looking values in text bound for logs.
func RedactSecrets(input string) string {
	if input == "" {
		return input
	}
	redacted := secretKVPattern.ReplaceAllString(input, `$1=<redacted>`)
	redacted = secretBearerPattern.ReplaceAllString(redacted, "bearer <redacted>")
	return redacted
}

// expandMessage fills %{FIELD_NAME}, %{RULE_ID} and %{MATCHED_VAR} in a rule
// message.
func expandMessage(msg string, m Match) string {
	if !strings.Contains(msg, "%{") {
		return msg
	}
	return strings.NewReplacer(
		"%{FIELD_NAME}", m.Field,
		"%{RULE_ID}", m.RuleID,
		"%{MATCHED_VAR}", m.Evidence,
	).Replace(msg)
}
