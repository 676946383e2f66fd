package gt3x

// Checksum is the one's complement of the XOR of every header byte
// (separator included) and every payload byte.
func Checksum(header, payload []byte) byte {
	var x byte
	for _, b := range header {
		x ^= b
	}
	for _, b := range payload {
		x ^= b
	}
	return ^x
}
