package tic

import (
	"strings"

	"github.com/temoto/teleinfo/log2"
)

const labelDate = "DATE"

// DecodeLine extracts label and value from checksum-valid line into frame.
// Corrupted line is logged and skipped, frame stays untouched.
func DecodeLine(log *log2.Log, line string, mode Mode, frame Frame) {
	items := mode.split(line)
	var label, value string
	switch len(items) {
	case 3:
		label, value = items[0], items[1]
	case 4: // label, timestamp, value, checksum
		label, value = items[0], items[2]
	default:
		log.Warningf("corrupted line received line=%q", line)
		return
	}

	if label == labelDate {
		return
	}
	if r := LookupRegister(label); r != nil {
		if err := r.Decode(value, frame); err != nil {
			log.Warningf("corrupted line received line=%q err=%v", line, err)
		}
		return
	}
	frame[label] = SanitizeValue(value)
}

// SanitizeValue removes ".." filler, collapses whitespace runs and trims.
func SanitizeValue(s string) string {
	s = strings.ReplaceAll(s, "..", "")
	return strings.Join(strings.Fields(s), " ")
}
