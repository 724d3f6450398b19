package session

import "testing"

func TestIncrementalDecoderWholeChunk(t *testing.T) {
	var d incrementalDecoder
	got := d.Decode([]byte("hello, world\n"))
	if got != "hello, world\n" {
		t.Errorf("got %q", got)
	}
}

func TestIncrementalDecoderSplitMultibyteRune(t *testing.T) {
	// "日" is E6 97 A5 in UTF-8; split it across two chunks.
	full := "日本語\n"
	raw := []byte(full)

	var d incrementalDecoder
	first := d.Decode(raw[:2])
	second := d.Decode(raw[2:])

	if first != "" {
		t.Errorf("first chunk decoded prematurely: %q", first)
	}
	if second != full {
		t.Errorf("got %q, want %q", second, full)
	}
}

func TestIncrementalDecoderInvalidByteReplaced(t *testing.T) {
	var d incrementalDecoder
	got := d.Decode([]byte{'a', 0xff, 'b'})
	if got != "a�b" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateScrollbackKeepsSuffix(t *testing.T) {
	got := truncateScrollback("abcdef", 3)
	if got != "def" {
		t.Errorf("got %q, want %q", got, "def")
	}
}

func TestTruncateScrollbackUnderLimit(t *testing.T) {
	got := truncateScrollback("ab", 10)
	if got != "ab" {
		t.Errorf("got %q, want unchanged %q", got, "ab")
	}
}

func TestTruncateScrollbackAtExactLimitPlusOneCharAppend(t *testing.T) {
	// Scrollback at exactly the limit, then a 1-character append, yields
	// length = limit, preserving the newest character (spec.md §8).
	atLimit := "abcde"
	appended := atLimit + "f"

	got := truncateScrollback(appended, 5)
	if len(got) != 5 {
		t.Fatalf("len(got) = %d, want 5", len(got))
	}
	if got != "bcdef" {
		t.Errorf("got %q, want %q", got, "bcdef")
	}
}

func TestTruncateScrollbackMultibyteBoundary(t *testing.T) {
	// Truncation operates on runes, not bytes: a 3-rune limit on
	// multibyte content must never split a rune.
	got := truncateScrollback("日本語版", 3)
	if got != "本語版" {
		t.Errorf("got %q, want %q", got, "本語版")
	}
}

func TestTruncateScrollbackZeroLimit(t *testing.T) {
	got := truncateScrollback("anything", 0)
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
