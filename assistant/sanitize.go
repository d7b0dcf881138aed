package assistant

import "regexp"

// PII masking for log lines (LGPD). Raw identifiers never reach the logs.
var (
	cpfPattern        = regexp.MustCompile(`\d{3}\.\d{3}\.\d{3}-\d{2}`)
	cnpjPattern       = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)
	creditCardPattern = regexp.MustCompile(`\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}`)
	emailPattern      = regexp.MustCompile(`([a-zA-Z])[a-zA-Z0-9._-]*@([a-zA-Z])[a-zA-Z0-9.-]*`)
	phonePattern      = regexp.MustCompile(`\((\d{2})\)\s*\d{4,5}-\d{4}`)
)

// SanitizePII masks CPF, CNPJ, credit-card, email and phone patterns.
func SanitizePII(text string) string {
	text = cpfPattern.ReplaceAllString(text, "***.***.***-**")
	text = cnpjPattern.ReplaceAllString(text, "**.***.***/****-**")
	text = creditCardPattern.ReplaceAllString(text, "**** **** **** ****")
	text = emailPattern.ReplaceAllString(text, "$1***@$2***")
	text = phonePattern.ReplaceAllString(text, "($1) *****-****")
	return text
}

// SafePreview truncates and sanitizes text for log output.
func SafePreview(text string, maxLength int) string {
	truncated := text
	suffix := ""
	if len(text) > maxLength {
		truncated = text[:maxLength]
		suffix = "..."
	}
	return SanitizePII(truncated) + suffix
}
