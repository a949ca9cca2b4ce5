// Package bytelevel holds the GPT-2 byte-to-unicode mapping used by byte-level BPE tokenizers.
//
// Every byte is mapped to a printable character, so arbitrary bytes can be represented in a
// vocabulary of strings: printable latin-1 bytes map to themselves, the others (controls,
// space, ...) are shifted to U+0100 and beyond. The space, for instance, becomes 'Ġ'.
package bytelevel

import "strings"

var (
	byteToChar [256]rune
	charToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF) {
			byteToChar[b] = rune(b)
		} else {
			byteToChar[b] = rune(256 + n)
			n++
		}
		charToByte[byteToChar[b]] = byte(b)
	}
}

// Char returns the character representing byte b.
func Char(b byte) rune {
	return byteToChar[b]
}

// Byte returns the byte represented by r, if r is part of the mapping.
func Byte(r rune) (byte, bool) {
	b, found := charToByte[r]
	return b, found
}

// Encode returns s with every byte replaced by its character.
func Encode(s string) string {
	var sb strings.Builder
	sb.Grow(2 * len(s))
	for i := 0; i < len(s); i++ {
		sb.WriteRune(byteToChar[s[i]])
	}
	return sb.String()
}

// Decode maps the characters of s back to bytes. Characters outside the mapping are kept
// as their UTF-8 encoding.
func Decode(s string) string {
	result := make([]byte, 0, len(s))
	for _, r := range s {
		if b, found := charToByte[r]; found {
			result = append(result, b)
		} else {
			result = append(result, string(r)...)
		}
	}
	return string(result)
}

// Alphabet returns the 256 characters of the mapping.
func Alphabet() []rune {
	alphabet := make([]rune, 256)
	copy(alphabet, byteToChar[:])
	return alphabet
}
