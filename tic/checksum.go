package tic

// Checksum of TIC line payload: sum of byte codes, low 6 bits, shifted into printable range.
func Checksum(payload string) byte {
	var sum uint32
	for i := 0; i < len(payload); i++ {
		sum += uint32(payload[i])
	}
	return byte(sum&0x3f) + 0x20
}

// ValidChecksum reports whether last byte of line is checksum of the rest.
// Lines without payload are invalid.
func ValidChecksum(line string, mode Mode) bool {
	n := len(line) - mode.checksumOffset()
	if n <= 0 {
		return false
	}
	return Checksum(line[:n]) == line[len(line)-1]
}
