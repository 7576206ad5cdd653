package engine

import (
	"strings"
	"testing"
)

// feed pushes text through a fresh filter in the given chunk sizes and
// returns everything emitted plus the flush remainder.
func feed(text string, chunkSize int) string {
	f := NewThinkFilter()
	var out strings.Builder
	for i := 0; i < len(text); i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		out.WriteString(f.Filter(text[i:end]))
	}
	out.WriteString(f.Flush())
	return out.String()
}

func TestFilterStripsThinkRegions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "plain text", "plain text"},
		{"single region", "before<think>hidden</think>after", "beforeafter"},
		{"region only", "<think>hidden</think>", ""},
		{"two regions", "a<think>x</think>b<think>y</think>c", "abc"},
		{"empty region", "a<think></think>b", "ab"},
		{"angle bracket not a tag", "a < b and c > d", "a < b and c > d"},
		{"incomplete open at end", "text<thi", "text<thi"},
		{"unclosed region flushes verbatim", "a<think>never closed", "anever closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Every chunking of the input must produce the same output.
			for _, size := range []int{1, 2, 3, 5, 7, len(tt.in) + 1} {
				if size <= 0 {
					continue
				}
				if got := feed(tt.in, size); got != tt.want {
					t.Fatalf("chunk size %d: got %q, want %q", size, got, tt.want)
				}
			}
		})
	}
}

func TestFilterHoldsBackAmbiguousTail(t *testing.T) {
	f := NewThinkFilter()

	// "<thi" could still become an opening tag, so it must not be emitted.
	if got := f.Filter("hello <thi"); got != "hello " {
		t.Fatalf("Filter = %q, want %q", got, "hello ")
	}
	// The next chunk disambiguates it as plain text.
	if got := f.Filter("ng>"); got != "<thing>" {
		t.Fatalf("Filter = %q, want %q", got, "<thing>")
	}
	if got := f.Flush(); got != "" {
		t.Fatalf("Flush = %q, want empty", got)
	}
}

func TestFilterTagSplitAcrossManyChunks(t *testing.T) {
	f := NewThinkFilter()
	var out strings.Builder
	for _, chunk := range []string{"a", "<", "th", "ink", ">", "hidden", "</think", ">", "b"} {
		out.WriteString(f.Filter(chunk))
	}
	out.WriteString(f.Flush())
	if got := out.String(); got != "ab" {
		t.Fatalf("got %q, want %q", got, "ab")
	}
}

func TestFilterInstanceIsPerStream(t *testing.T) {
	f := NewThinkFilter()
	f.Filter("<think>suppressed")
	f.Flush()

	// After a flush the filter starts clean.
	if got := f.Filter("visible"); got != "visible" {
		t.Fatalf("got %q, want %q", got, "visible")
	}
}
