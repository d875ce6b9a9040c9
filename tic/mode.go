package tic

import (
	"regexp"
	"strings"

	"github.com/juju/errors"
)

type Mode uint8

const (
	ModeStandard Mode = iota
	ModeHistoric
)

var reHistoricSep = regexp.MustCompile(`\s+`)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "historic":
		return ModeHistoric, nil
	}
	return ModeStandard, errors.NotValidf("tic mode=%s", s)
}

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeHistoric:
		return "historic"
	}
	return "invalid"
}

func (m Mode) BaudRate() int {
	if m == ModeHistoric {
		return 1200
	}
	return 9600
}

// checksumOffset is count of trailing bytes excluded from checksum payload:
// checksum itself and, in historic mode, the separator before it.
func (m Mode) checksumOffset() int {
	if m == ModeHistoric {
		return 2
	}
	return 1
}

func (m Mode) split(line string) []string {
	if m == ModeHistoric {
		return reHistoricSep.Split(line, -1)
	}
	return strings.Split(line, "\t")
}
