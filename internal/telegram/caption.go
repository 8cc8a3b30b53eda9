package telegram

import (
	"unicode/utf16"
)

// DefaultCaptionLimit is the caption length limit in UTF-16 code units.
const DefaultCaptionLimit = 1024

// TruncateCaption shortens text to at most limit UTF-16 code units without
// splitting a surrogate pair. Telegram counts text lengths in UTF-16.
func TruncateCaption(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	units := utf16.Encode([]rune(text))
	if len(units) <= limit {
		return text
	}

	end := limit
	// Do not keep a dangling high surrogate.
	if utf16.IsSurrogate(rune(units[end-1])) && units[end-1] < 0xDC00 {
		end--
	}
	return string(utf16.Decode(units[:end]))
}

// CaptionLength returns the length of text in UTF-16 code units.
func CaptionLength(text string) int {
	return len(utf16.Encode([]rune(text)))
}
