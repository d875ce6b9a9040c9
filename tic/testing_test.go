package tic

import (
	"bytes"
	"strings"
	"testing"

	"github.com/temoto/teleinfo/log2"
)

// Frames captured from meters, lines joined by CR LF.
var (
	frameHistoric = strings.Join([]string{
		"ADCO 031428143221 6",
		"OPTARIF BASE 0",
		"ISOUSC 15 <",
		"BASE 003775961 1",
		"PTEC TH.. $",
		"IINST 000 W",
		"IMAX 000 ?",
		"PAPP 00000 !",
		"MOTDETAT 000000 B",
	}, "\r\n")

	// IMAX checksum is wrong
	frameHistoricBadChecksum = strings.Replace(frameHistoric, "IMAX 000 ?", "IMAX 000 1", 1)

	frameStandardMono = strings.Join([]string{
		"ADSC\t042076248191\t9",
		"VTIC\t02\tJ",
		"IRMS1\t001\t/",
		"DATE\tE221016123654\t\t?",
		"NGTF\t     TEMPO\tF",
		"URMS1\t238\tG",
		"LTARF\t    HP  BLEU\t+",
	}, "\r\n")

	frameStandardTri = strings.Join([]string{
		"ADSC\t042076248191\t9",
		"NGTF\t     TEMPO\tF",
		"IRMS1\t002\t0",
		"IRMS2\t002\t1",
		"IRMS3\t002\t2",
		"URMS1\t235\tD",
		"URMS2\t236\tF",
		"URMS3\t237\tH",
	}, "\r\n")
)

var expectHistoric = Frame{
	"ADCO":     "031428143221",
	"BASE":     "003775961",
	"IINST":    "000",
	"IMAX":     "000",
	"ISOUSC":   "15",
	"MOTDETAT": "000000",
	"OPTARIF":  "BASE",
	"PAPP":     "00000",
	"PTEC":     "TH",
}

func testLogBuffer() (*log2.Log, *bytes.Buffer) {
	buf := bytes.NewBuffer(nil)
	log := log2.NewWriter(buf, log2.LAll)
	log.SetFlags(0)
	return log, buf
}

// line builds valid line with computed checksum.
func line(mode Mode, label, value string) string {
	if mode == ModeHistoric {
		payload := label + " " + value
		return payload + " " + string(Checksum(payload))
	}
	payload := label + "\t" + value + "\t"
	return payload + string(Checksum(payload))
}

func frameText(lines ...string) string { return strings.Join(lines, "\r\n") }

func nopEmit(string, Frame) {}

func newTestDecoder(t testing.TB, mode Mode, emit Emitter) *Decoder {
	d, err := NewDecoder(DecoderOptions{Mode: mode, Log: log2.NewTest(t, log2.LAll), Emit: emit})
	if err != nil {
		t.Fatal(err)
	}
	return d
}
