package orchestration

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// clauseMinLength is the minimum accumulated length before a clause
// delimiter (comma, semicolon, colon) cuts a chunk. Sentence delimiters cut
// regardless.
const clauseMinLength = 48

// chunkAssembler incrementally groups streamed tokens into speakable chunks
// at sentence and clause boundaries so playback can start before generation
// completes. Ordinals start at 1 and increase by one per emitted chunk.
type chunkAssembler struct {
	pending strings.Builder
	ordinal int
}

// push appends a token and returns any chunks completed by it.
func (c *chunkAssembler) push(token string) []ResponseChunk {
	c.pending.WriteString(token)

	var chunks []ResponseChunk
	for {
		text := c.pending.String()
		cut := c.boundary(text)
		if cut < 0 {
			break
		}

		chunk := strings.TrimSpace(text[:cut])
		rest := text[cut:]
		c.pending.Reset()
		c.pending.WriteString(strings.TrimLeft(rest, " "))

		if chunk == "" {
			continue
		}
		c.ordinal++
		chunks = append(chunks, ResponseChunk{Ordinal: c.ordinal, Text: chunk})
	}
	return chunks
}

// flush emits whatever text remains. The returned chunk, possibly empty, is
// always marked last.
func (c *chunkAssembler) flush() ResponseChunk {
	text := strings.TrimSpace(c.pending.String())
	c.pending.Reset()
	c.ordinal++
	return ResponseChunk{Ordinal: c.ordinal, Text: text, IsLast: true}
}

// boundary returns the cut position just past the first usable delimiter, or
// -1 if the pending text has no boundary yet. A delimiter only counts once
// the following rune confirms it ends a sentence or clause, so "3.14" and
// "e.g." inside a token stream do not cut.
func (c *chunkAssembler) boundary(text string) int {
	for i, r := range text {
		sentence := r == '.' || r == '!' || r == '?'
		clause := r == ',' || r == ';' || r == ':'
		if !sentence && !clause {
			continue
		}

		next, width := utf8.DecodeRuneInString(text[i+utf8.RuneLen(r):])
		if width > 0 && !unicode.IsSpace(next) {
			continue
		}
		if width == 0 {
			// Stream may still be mid-sentence; wait for the next token to
			// confirm the delimiter.
			return -1
		}

		if sentence || i >= clauseMinLength {
			return i + utf8.RuneLen(r)
		}
	}
	return -1
}
