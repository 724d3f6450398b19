package session

import "unicode/utf8"

// incrementalDecoder turns a stream of raw byte chunks into valid UTF-8
// text, tolerating multibyte sequences split across chunk boundaries —
// spec.md §4.1's "the core does not assume UTF-8 is complete on chunk
// boundaries" and §4.3's "decode as best-effort UTF-8 (malformed bytes
// replaced)". It buffers at most utf8.UTFMax-1 trailing bytes between
// calls; anything that still doesn't decode once more bytes arrive is
// replaced with the Unicode replacement character, matching the
// original implementation's decode(..., errors="ignore") intent while
// still surfacing a visible marker rather than silently dropping bytes.
type incrementalDecoder struct {
	pending []byte
}

// Decode consumes chunk and returns the text it can confidently decode.
// Incomplete trailing bytes are held back for the next call.
func (d *incrementalDecoder) Decode(chunk []byte) string {
	buf := append(d.pending, chunk...)
	d.pending = nil

	out := make([]rune, 0, len(buf))
	i := 0
	for i < len(buf) {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size <= 1 {
			// Either a genuinely invalid byte, or a truncated sequence at
			// the very end of the buffer that might complete once more
			// bytes arrive next call.
			if size == 0 {
				break
			}
			if i+utf8.UTFMax > len(buf) && !utf8.FullRune(buf[i:]) {
				d.pending = append(d.pending, buf[i:]...)
				break
			}
			out = append(out, utf8.RuneError)
			i++
			continue
		}
		out = append(out, r)
		i += size
	}

	return string(out)
}
