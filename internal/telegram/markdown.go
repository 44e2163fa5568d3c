package telegram

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const fence = "```"

// SplitMessage splits a message into chunks of at most maxLen runes,
// preferring newlines in the second half of a chunk. A code block cut by a
// split is closed at the end of one part and reopened in the next.
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	budget := maxLen
	if strings.Contains(text, fence) {
		budget -= len("\n" + fence)
	}

	var parts []string
	for text != "" {
		runes := []rune(text)
		if len(runes) <= maxLen {
			parts = append(parts, text)
			break
		}

		splitAt := budget
		for i := budget - 1; i > budget/2; i-- {
			if runes[i] == '\n' {
				splitAt = i + 1
				break
			}
		}

		part := string(runes[:splitAt])
		text = string(runes[splitAt:])
		if strings.Count(part, fence)%2 != 0 {
			part = strings.TrimSuffix(part, "\n") + "\n" + fence
			text = fence + "\n" + text
		}
		parts = append(parts, part)
	}

	return parts
}

// FixMarkdown makes assistant output safe for legacy Markdown: unclosed
// code is closed, snake_case identifiers are escaped, and an unpaired
// emphasis marker outside code is escaped.
func FixMarkdown(text string) string {
	if strings.Count(text, fence)%2 != 0 {
		text += "\n" + fence
	}
	return escapeEmphasis(closeInlineCode(text))
}

func closeInlineCode(text string) string {
	var b strings.Builder
	inBlock := false
	inline := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if hasFence(runes, i) {
			if inline {
				b.WriteRune('`')
				inline = false
			}
			inBlock = !inBlock
			b.WriteString(fence)
			i += 2
			continue
		}
		if !inBlock && runes[i] == '`' {
			inline = !inline
		}
		b.WriteRune(runes[i])
	}
	if inline {
		b.WriteRune('`')
	}
	return b.String()
}

// escapeEmphasis escapes '_' between word characters, then the last '*'
// or '_' of each kind left unpaired. Code spans and blocks are untouched.
func escapeEmphasis(text string) string {
	runes := []rune(text)
	escape := make(map[int]bool)
	last := map[rune]int{}
	count := map[rune]int{}

	inBlock, inline := false, false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case hasFence(runes, i):
			inBlock = !inBlock
			i += 2
			continue
		case inBlock:
			continue
		case r == '`':
			inline = !inline
			continue
		case inline:
			continue
		case i > 0 && runes[i-1] == '\\':
			continue
		}

		if r != '*' && r != '_' {
			continue
		}
		if r == '_' && i > 0 && i+1 < len(runes) && isWord(runes[i-1]) && isWord(runes[i+1]) {
			escape[i] = true
			continue
		}
		count[r]++
		last[r] = i
	}
	for r, n := range count {
		if n%2 != 0 {
			escape[last[r]] = true
		}
	}
	if len(escape) == 0 {
		return text
	}

	var b strings.Builder
	for i, r := range runes {
		if escape[i] {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasFence(runes []rune, i int) bool {
	return i+2 < len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`'
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
