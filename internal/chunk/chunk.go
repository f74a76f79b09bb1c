// Package chunk splits model replies into platform-legal fragments.
package chunk

import (
	"fmt"
	"strings"
)

// fenceDelim opens and closes fenced code blocks.
const fenceDelim = "```"

// closeReserve is the space kept free inside an open fenced block so
// the block can always be terminated at a fragment boundary.
const closeReserve = len("\n" + fenceDelim)

// Fragment is one platform-legal chunk of a split reply. Index and
// Total describe its position in the emission order.
type Fragment struct {
	Content string
	Index   int
	Total   int
}

// Splitter breaks text into fragments no longer than a fixed limit,
// preferring whitespace boundaries and keeping fenced code blocks
// independently renderable.
type Splitter struct {
	maxLen int
}

// New creates a splitter. The limit is a platform constant (2000 for
// Discord); a limit below 1 is a configuration error.
func New(maxLen int) (*Splitter, error) {
	if maxLen < 1 {
		return nil, fmt.Errorf("fragment limit must be at least 1, got %d", maxLen)
	}
	return &Splitter{maxLen: maxLen}, nil
}

// Split breaks text into ordered fragments. Every fragment is
// non-empty and at most maxLen characters. Text at or under the limit
// comes back as a single fragment. Splits land on whitespace
// boundaries when one exists in the window; a single over-long token
// is hard-split at the limit. A break never lands inside fenced
// content when the boundary can be moved back to the fence opener;
// when the fenced content alone exceeds the window, the fence is
// closed at the fragment boundary and reopened in the next fragment.
func (s *Splitter) Split(text string) []Fragment {
	if text == "" {
		return nil
	}
	if len(text) <= s.maxLen {
		return []Fragment{{Content: text, Index: 0, Total: 1}}
	}

	pieces := s.split(text)
	frags := make([]Fragment, len(pieces))
	for i, p := range pieces {
		frags[i] = Fragment{Content: p, Index: i, Total: len(pieces)}
	}
	return frags
}

// split does the line-oriented accumulation. Lines are joined with
// the newlines they arrived with; a break between lines consumes the
// single separating newline, mirroring how a break inside a line
// consumes the separating space.
func (s *Splitter) split(text string) []string {
	var frags []string

	var cur []string // lines of the fragment being built
	curLen := 0      // rendered length of cur
	fence := ""      // opener line of the active fenced block, "" outside
	fenceIdx := -1   // index within cur of the opener line

	joined := func(line string) int {
		if len(cur) == 0 {
			return len(line)
		}
		return curLen + 1 + len(line)
	}
	push := func(line string) {
		curLen = joined(line)
		cur = append(cur, line)
	}
	flush := func() {
		if f := strings.Join(cur, "\n"); f != "" {
			frags = append(frags, f)
		}
		cur = nil
		curLen = 0
		fenceIdx = -1
	}

	for _, line := range strings.Split(text, "\n") {
		isFence := isFenceLine(line)

		// Keep room to terminate an open fence at the fragment
		// boundary. The closing fence line itself needs no reserve.
		reserve := 0
		if fence != "" && !isFence {
			reserve = closeReserve
		}

		if joined(line)+reserve > s.maxLen {
			switch {
			case fence == "":
				// Break at the line boundary, then wrap the line
				// itself if it alone exceeds the window.
				flush()
				rest := line
				for len(rest) > s.maxLen {
					head, tail := cutAt(rest, s.maxLen)
					frags = append(frags, head)
					rest = tail
				}
				if rest != "" {
					push(rest)
				}

			case fenceIdx > 0:
				// The opener sits mid-fragment: push the boundary
				// back to the fence start so the block stays whole.
				head := cur[:fenceIdx]
				tail := append([]string(nil), cur[fenceIdx:]...)
				cur = head
				flush()
				for _, l := range tail {
					push(l)
				}
				fenceIdx = 0
				if joined(line)+reserve <= s.maxLen {
					push(line)
					break
				}
				fallthrough

			default:
				// The fenced content alone exceeds the window:
				// terminate the block here and reopen it in the
				// next fragment.
				rest := line
				for {
					// A fragment holding only the opener has
					// nothing to close yet.
					if len(cur) != 1 || cur[0] != fence {
						push(fenceDelim)
						flush()
						push(fence)
						fenceIdx = 0
					}
					room := s.maxLen - curLen - 1 - closeReserve
					if len(rest) <= room {
						break
					}
					var head string
					head, rest = cutAt(rest, room)
					push(head)
				}
				if rest != "" {
					push(rest)
				}
			}
		} else {
			push(line)
		}

		if isFence {
			if fence == "" {
				// Fence tracking needs enough window for a reopen
				// line, one content character, and the close
				// reserve. Below that, treat the block as plain
				// text.
				if len(line)+2+closeReserve <= s.maxLen {
					fence = line
					fenceIdx = len(cur) - 1
				}
			} else {
				fence = ""
				fenceIdx = -1
			}
		}
	}
	flush()

	return frags
}

// cutAt splits s so the head fits in room characters, preferring the
// last space inside the window and consuming it; with no usable space
// it hard-splits at exactly room.
func cutAt(s string, room int) (head, rest string) {
	if len(s) <= room {
		return s, ""
	}
	if i := strings.LastIndexByte(s[:room+1], ' '); i > 0 {
		return s[:i], s[i+1:]
	}
	return s[:room], s[room:]
}

// isFenceLine reports whether the line is a ``` fence marker.
func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fenceDelim)
}
