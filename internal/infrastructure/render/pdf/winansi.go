package pdf

// winAnsiOverrides maps the runes whose WinAnsi code differs from Latin-1,
// the 0x80..0x9F block. Runes in 0xA0..0xFF map to their own value.
var winAnsiOverrides = map[rune]byte{
	'€': 0x80, // euro sign
	'‚': 0x82,
	'ƒ': 0x83,
	'„': 0x84,
	'…': 0x85,
	'†': 0x86,
	'‡': 0x87,
	'ˆ': 0x88,
	'‰': 0x89,
	'Š': 0x8A,
	'‹': 0x8B,
	'Œ': 0x8C,
	'Ž': 0x8E,
	'‘': 0x91,
	'’': 0x92,
	'“': 0x93,
	'”': 0x94,
	'•': 0x95,
	'–': 0x96,
	'—': 0x97,
	'˜': 0x98,
	'™': 0x99,
	'š': 0x9A,
	'›': 0x9B,
	'œ': 0x9C,
	'ž': 0x9E,
	'Ÿ': 0x9F,
}

// encodeWinAnsi converts s to WinAnsi bytes, the encoding the core fonts are
// declared with. Runes outside the encoding become '?'.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x80:
			out = append(out, byte(r))
		case r >= 0xA0 && r <= 0xFF:
			out = append(out, byte(r))
		default:
			if b, ok := winAnsiOverrides[r]; ok {
				out = append(out, b)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

// escapeText renders encoded bytes as the inside of a PDF literal string.
// Backslash and parentheses are escaped; bytes outside the printable ASCII
// range are written as octal escapes.
func escapeText(encoded []byte) string {
	out := make([]byte, 0, len(encoded)+8)
	for _, b := range encoded {
		switch {
		case b == '\\' || b == '(' || b == ')':
			out = append(out, '\\', b)
		case b < 0x20 || b > 0x7E:
			out = append(out, '\\',
				'0'+(b>>6)&7,
				'0'+(b>>3)&7,
				'0'+b&7)
		default:
			out = append(out, b)
		}
	}
	return string(out)
}

// escapeString is escapeText over a raw string, used for metadata values.
func escapeString(s string) string {
	return escapeText(encodeWinAnsi(s))
}
