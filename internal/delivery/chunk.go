package delivery

import "unicode/utf8"

// Chunk splits text into ordered segments of at most max characters.
// Joining the segments gives back text exactly. A non-positive max
// disables splitting.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var segments []string
	start, runes := 0, 0
	for i := range text {
		if runes == max {
			segments = append(segments, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(segments, text[start:])
}
