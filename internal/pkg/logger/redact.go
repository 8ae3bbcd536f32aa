package logger

// RedactID masks a customer identifier for safe logging.
// "50012" → "50***"
// Short identifiers (≤2 characters) are fully masked: "42" → "***"
func RedactID(id string) string {
	r := []rune(id)
	if len(r) > 2 {
		return string(r[:2]) + "***"
	}
	return "***"
}
