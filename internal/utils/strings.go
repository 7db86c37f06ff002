package utils

import "unicode/utf8"

// Truncate bounds s to at most limit bytes, backing off to the nearest rune
// boundary so a multibyte character is never split. Error responses and log
// fields carry previews of model output, which can be very large.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
