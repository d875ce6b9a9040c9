package tic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mode   Mode
		line   string
		expect Frame
		warn   string
	}{
		{"standard/3", ModeStandard, "VTIC\t02\tJ", Frame{"VTIC": "02"}, ""},
		{"standard/4-timestamp", ModeStandard, "UMOY1\tE221013203000\t235\t#", Frame{"UMOY1": "235"}, ""},
		{"standard/sanitize", ModeStandard, "LTARF\t    HP  BLEU\t+", Frame{"LTARF": "HP BLEU"}, ""},
		{"standard/date", ModeStandard, "DATE\tE221016123654\t\t?", Frame{}, ""},
		{"standard/space-checksum", ModeStandard, "X\tY\t ", Frame{"X": "Y"}, ""},
		{"historic/3", ModeHistoric, "ADCO 031428143221 6", Frame{"ADCO": "031428143221"}, ""},
		{"historic/dots", ModeHistoric, "PTEC TH.. $", Frame{"PTEC": "TH"}, ""},
		{"historic/space-checksum", ModeHistoric, "HHPHC A  ", Frame{"HHPHC": "A"}, ""},
		{"historic/ppot", ModeHistoric, "PPOT 0E #", Frame{"PPOT1": 1, "PPOT2": 1, "PPOT3": 1}, ""},
		{"standard/relais", ModeStandard, "RELAIS\t255\tB", Frame{
			"RELAIS01": 1, "RELAIS02": 1, "RELAIS03": 1, "RELAIS04": 1,
			"RELAIS05": 1, "RELAIS06": 1, "RELAIS07": 1, "RELAIS08": 1,
		}, ""},
		{"historic/corrupted", ModeHistoric, "031428143221 6", Frame{}, "warning: corrupted line received"},
		{"standard/corrupted", ModeStandard, "A\tB\tC\tD\tE", Frame{}, "warning: corrupted line received"},
		{"standard/register-garbage", ModeStandard, "STGE\tZZZZ\tC", Frame{}, "warning: corrupted line received"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log, buf := testLogBuffer()
			f := Frame{}
			DecodeLine(log, c.line, c.mode, f)
			assert.Equal(t, c.expect, f)
			if c.warn == "" {
				assert.Equal(t, "", buf.String())
			} else {
				assert.Contains(t, buf.String(), c.warn)
			}
		})
	}
}

func TestDecodeLineKeepsOtherFields(t *testing.T) {
	t.Parallel()

	log, _ := testLogBuffer()
	f := Frame{"ADSC": "042076248191"}
	DecodeLine(log, "broken", ModeStandard, f)
	DecodeLine(log, "STGE\t40000001\tC", ModeStandard, f)
	assert.Equal(t, "042076248191", f["ADSC"])
	assert.Equal(t, 1, f["STGE18"])
	assert.NotContains(t, f, "STGE")
	assert.Len(t, f, 19)
}

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	cases := []struct{ input, expect string }{
		{"TH..", "TH"},
		{"     TEMPO", "TEMPO"},
		{"  HP  BLEU ", "HP BLEU"},
		{"A..B....C", "ABC"},
		{"...", "."},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, SanitizeValue(c.input), c.input)
	}
}
