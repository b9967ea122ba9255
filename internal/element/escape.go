package element

import (
	"fmt"
	"strings"
)

// EscapeIdent serializes s as a CSS identifier, following the CSSOM
// CSS.escape() algorithm.
func EscapeIdent(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			writeCodePoint(&b, r)
		case i == 0 && r >= '0' && r <= '9':
			writeCodePoint(&b, r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			writeCodePoint(&b, r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeCodePoint(b *strings.Builder, r rune) {
	fmt.Fprintf(b, "\\%x ", r)
}

// ParseSelector splits a structural selector produced by Selector back into
// its tag and unescaped class names. It understands only the tag.class form.
func ParseSelector(sel string) (tag string, classes []string) {
	var cur strings.Builder
	inTag := true
	flush := func() {
		if inTag {
			tag = cur.String()
		} else if cur.Len() > 0 {
			classes = append(classes, cur.String())
		}
		cur.Reset()
	}

	runes := []rune(sel)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			i = readEscape(runes, i+1, &cur)
		case r == '.':
			flush()
			inTag = false
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tag, classes
}

// readEscape consumes an escape sequence starting at runes[i] (just past the
// backslash) and returns the index of its last rune.
func readEscape(runes []rune, i int, out *strings.Builder) int {
	if !isHex(runes[i]) {
		out.WriteRune(runes[i])
		return i
	}
	j := i
	var cp rune
	for j < len(runes) && j-i < 6 && isHex(runes[j]) {
		cp = cp*16 + hexVal(runes[j])
		j++
	}
	out.WriteRune(cp)
	if j < len(runes) && runes[j] == ' ' {
		return j
	}
	return j - 1
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexVal(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return r - '0'
	case r >= 'a' && r <= 'f':
		return r - 'a' + 10
	default:
		return r - 'A' + 10
	}
}
