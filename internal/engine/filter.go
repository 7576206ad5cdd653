package engine

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// ThinkFilter strips <think>...</think> reasoning markup from a live token
// stream. It is a stateful transducer: text outside a think region is
// emitted, text inside is suppressed, and a buffer tail that could still
// turn out to be the start of an opening tag is held back until more input
// disambiguates it. That hold-back is what lets a tag be recognized even
// when split across chunk boundaries.
//
// One instance serves exactly one stream; create a new one per call.
type ThinkFilter struct {
	buf     string
	inThink bool
}

// NewThinkFilter returns a fresh filter positioned outside any tag.
func NewThinkFilter() *ThinkFilter {
	return &ThinkFilter{}
}

// Filter appends chunk to the internal buffer and returns the text that is
// now safe to emit.
func (f *ThinkFilter) Filter(chunk string) string {
	f.buf += chunk
	var out strings.Builder

	for {
		if f.inThink {
			i := strings.Index(f.buf, thinkCloseTag)
			if i < 0 {
				// Still inside the region; everything stays suppressed
				// in the buffer until the closing tag shows up.
				return out.String()
			}
			f.buf = f.buf[i+len(thinkCloseTag):]
			f.inThink = false
			continue
		}

		i := strings.Index(f.buf, thinkOpenTag)
		if i >= 0 {
			out.WriteString(f.buf[:i])
			f.buf = f.buf[i+len(thinkOpenTag):]
			f.inThink = true
			continue
		}

		// No complete opening tag. Emit everything except a tail that is
		// still a viable prefix of the opening tag.
		hold := ambiguousTailLen(f.buf, thinkOpenTag)
		out.WriteString(f.buf[:len(f.buf)-hold])
		f.buf = f.buf[len(f.buf)-hold:]
		return out.String()
	}
}

// Flush returns and clears whatever remains buffered. If the stream ended
// mid-tag the partial content comes back verbatim; best-effort beats
// silent loss.
func (f *ThinkFilter) Flush() string {
	rest := f.buf
	f.buf = ""
	f.inThink = false
	return rest
}

// ambiguousTailLen returns the length of the longest suffix of s that is a
// proper prefix of tag.
func ambiguousTailLen(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
