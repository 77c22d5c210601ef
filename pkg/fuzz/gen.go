package fuzz

import "strings"

// Generation bounds.
const (
	maxPathSegments  = 30   // paths have 1..30 segments
	maxContentLength = 1000 // content length drawn from [0, 1000)
	contentByteMax   = 10   // content bytes drawn from [0, 10)
)

// pathAlphabet is the set of runes a path segment may use: printable ASCII
// minus structural characters (the path separator, glob/wildcard
// characters, quoting characters, the relative-path marker, and
// whitespace). Keeping the alphabet small makes generated trees collide in
// interesting ways while staying unambiguous on the wire.
var pathAlphabet = buildPathAlphabet()

func buildPathAlphabet() []rune {
	reserved := map[rune]bool{
		'/': true, '\\': true,
		'*': true, '?': true, '[': true, ']': true, '{': true, '}': true,
		'"': true, '\'': true, '`': true,
		'.': true,
	}

	var alphabet []rune

	for r := rune('!'); r <= '~'; r++ {
		if !reserved[r] {
			alphabet = append(alphabet, r)
		}
	}

	return alphabet
}

// generatePath produces a hierarchical slash-delimited path of 1..30
// single-rune segments that collides with neither the tracked-files map,
// the tracked-directories map, nor any extra exclusion (used when one
// operation claims two fresh paths at once). It retries until the
// candidate is free.
func generatePath(r *Rand, s *State, exclude map[string]bool) string {
	for {
		extra, _ := r.Int(maxPathSegments - 1)
		segments := make([]string, extra+1)

		for i := range segments {
			idx, _ := r.Int(len(pathAlphabet) - 1)
			segments[i] = string(pathAlphabet[idx])
		}

		candidate := strings.Join(segments, "/")

		if s.HasPath(candidate) || exclude[candidate] {
			continue
		}

		return candidate
	}
}

// generateContent produces a byte buffer of length uniform in [0, 1000)
// with each byte uniform in [0, 10). The low entropy is intentional: it
// stresses small-alphabet content matching, not byte randomness.
func generateContent(r *Rand) []byte {
	length, _ := r.Int(maxContentLength - 1)
	content := make([]byte, length)

	for i := range content {
		b, _ := r.Int(contentByteMax - 1)
		content[i] = byte(b)
	}

	return content
}

// pickWindow chooses a read window over content of the given length:
// a start offset anywhere inside the content and a length that keeps the
// window fully inside it. Empty content pins the window to [0, 0).
func pickWindow(r *Rand, contentLen int) (int, int) {
	start, ok := r.Int(contentLen - 1)
	if !ok {
		return 0, 0
	}

	length, _ := r.Int(contentLen - start)

	return start, length
}
