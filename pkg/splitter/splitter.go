// Package splitter breaks long agent replies into ordered, bounded-length
// message chunks suitable for posting to a length-constrained channel.
//
// The splitter preserves Markdown code-fence validity across chunk
// boundaries: a chunk that would end inside a fenced block is closed with a
// synthetic fence, and the following chunk reopens the fence (with the same
// language tag) before its own content. Every chunk after the first is
// prefixed with a fixed continuation marker. The function is pure and never
// fails; pathological inputs are hard-wrapped.
package splitter

import "strings"

// ContinuationMarker prefixes every chunk after the first, signaling to the
// reader that the message continues a prior one.
const ContinuationMarker = "</ continuing>\n"

// fenceDelim is the Markdown code-block boundary token.
const fenceDelim = "```"

// fenceState tracks whether the scan position sits inside a fenced code
// block. It is threaded through the split loop as an explicit value so the
// state persists across every chunk boundary, not per chunk.
type fenceState struct {
	lang        string // language tag of the currently open fence, if any
	open        bool
	atLineStart bool // whether the next character begins a new line
}

// advance toggles the fence state across content and returns the resulting
// state. Any line beginning with a triple backtick toggles, regardless of
// nesting. A leading segment only counts as a line when the state says the
// content begins at a line start (hard cuts resume mid-line).
func (s fenceState) advance(content string) fenceState {
	lineStart := s.atLineStart
	rest := content
	for len(rest) > 0 {
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line = rest[:i]
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		if lineStart && strings.HasPrefix(line, fenceDelim) {
			if s.open {
				s.open = false
				s.lang = ""
			} else {
				s.open = true
				s.lang = strings.TrimSpace(line[len(fenceDelim):])
			}
		}
		lineStart = true
	}
	s.atLineStart = strings.HasSuffix(content, "\n") || content == ""
	return s
}

// reopen returns the fence line that restores an open block at the start of
// the next chunk.
func (s fenceState) reopen() string {
	return fenceDelim + s.lang + "\n"
}

// cut selects the content of the next chunk from text given a byte budget.
// It prefers the last newline within the window (the newline itself is
// consumed) and falls back to a hard cut exactly at the budget. The returned
// consumed count includes any consumed newline.
func cut(text string, budget int) (content string, consumed int) {
	if budget < 1 {
		budget = 1 // degenerate limits still make forward progress
	}
	if len(text) <= budget {
		return text, len(text)
	}
	window := text[:budget]
	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		return text[:i], i + 1
	}
	return window, budget
}

// Split transforms text into an ordered list of chunks, each at most maxLen
// bytes. It always returns at least one chunk; Split(text, n) == [text]
// whenever len(text) <= n. Continuation markers and fence-repair insertions
// count against each chunk's budget.
func Split(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	state := fenceState{atLineStart: true}
	remaining := text

	for len(remaining) > 0 {
		prefix := ""
		if len(chunks) > 0 {
			prefix = ContinuationMarker
			if state.open {
				prefix += state.reopen()
			}
		}

		budget := maxLen - len(prefix)
		content, consumed := cut(remaining, budget)
		next := state.advance(content)

		if next.open {
			closer := closerFor(content)
			if len(prefix)+len(content)+len(closer) > maxLen {
				// Re-cut with room reserved for the longest possible
				// synthetic close. The shorter cut may land before the
				// opening fence line, in which case no close is needed
				// after all.
				if reserved := budget - len(fenceDelim) - 1; reserved >= 1 {
					content, consumed = cut(remaining, reserved)
					next = state.advance(content)
					closer = closerFor(content)
				}
			}
			if next.open && len(prefix)+len(content)+len(closer) <= maxLen {
				content += closer
			}
			// Limits too small to carry a close leave the fence running
			// into the next chunk's reopen line.
		}

		chunks = append(chunks, prefix+content)
		state = next
		remaining = remaining[consumed:]
		// A consumed cut newline means the next chunk starts a fresh line.
		if consumed > 0 && text[len(text)-len(remaining)-1] == '\n' {
			state.atLineStart = true
		}
	}

	return chunks
}

// closerFor returns the synthetic closing fence for a chunk ending inside a
// block. The delimiter must sit on its own line.
func closerFor(content string) string {
	if strings.HasSuffix(content, "\n") || content == "" {
		return fenceDelim
	}
	return "\n" + fenceDelim
}
