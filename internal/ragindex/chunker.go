package ragindex

import (
	"strings"
	"unicode/utf8"
)

// SplitText breaks a document into chunks of at most maxChars, preferring
// paragraph boundaries, with overlap characters repeated between adjacent
// chunks so retrieval doesn't lose context at the seams.
func SplitText(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		maxChars = 1200
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var buf strings.Builder
	flush := func() {
		chunk := strings.TrimSpace(buf.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		buf.Reset()
		if overlap > 0 && len(chunk) > overlap {
			// advance the cut to a rune boundary so the carried tail is valid UTF-8
			cut := len(chunk) - overlap
			for cut < len(chunk) && !utf8.RuneStart(chunk[cut]) {
				cut++
			}
			buf.WriteString(chunk[cut:])
			buf.WriteString("\n")
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		// oversized paragraph: hard-split on a rune boundary
		for len(para) > maxChars {
			if buf.Len() > 0 {
				flush()
			}
			cut := maxChars
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxChars
			}
			buf.WriteString(para[:cut])
			flush()
			para = para[cut:]
		}
		if buf.Len()+len(para)+2 > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()
	return chunks
}
