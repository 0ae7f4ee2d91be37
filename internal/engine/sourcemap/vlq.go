package sourcemap

import "strings"

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// writeVLQ appends value as a base64 VLQ: sign in the lowest bit, five
// payload bits per digit, and a continuation bit.
func writeVLQ(sb *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		sb.WriteByte(base64Digits[digit])
		if vlq == 0 {
			return
		}
	}
}
