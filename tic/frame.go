package tic

import (
	"strconv"
	"strings"

	"github.com/temoto/teleinfo/log2"
)

// Frame is decoded label -> value mapping. Values are string or int,
// nested Frame or map[string]interface{} are supported by Diff.
type Frame map[string]interface{}

const (
	LabelADCO = "ADCO" // device id, historic
	LabelADSC = "ADSC" // device id, standard
)

const lineSep = "\r\n"

// HasFrameStart reports whether raw text begins with device identifier label.
func HasFrameStart(raw string) bool {
	return strings.HasPrefix(raw, LabelADCO) || strings.HasPrefix(raw, LabelADSC)
}

// SplitLines splits raw frame text on CR LF.
func SplitLines(raw string) []string { return strings.Split(raw, lineSep) }

// AssembleFrame decodes checksum-valid lines into fresh Frame and derives power fields.
func AssembleFrame(log *log2.Log, lines []string, mode Mode) Frame {
	f := make(Frame, len(lines)+8)
	for _, line := range lines {
		DecodeLine(log, line, mode, f)
	}
	DerivePower(log, f, mode)
	return f
}

// DeviceID is ADCO if present, else ADSC.
func (f Frame) DeviceID() string {
	if s, ok := f[LabelADCO].(string); ok {
		return s
	}
	if s, ok := f[LabelADSC].(string); ok {
		return s
	}
	return ""
}

// DerivePower computes apparent power in standard mode.
// Missing IRMS2 means single phase: PRMS = IRMS1*URMS1.
// Otherwise PRMS1..3 per phase, IRMS and PRMS as sums.
// Historic meters send PAPP themselves.
func DerivePower(log *log2.Log, f Frame, mode Mode) {
	if mode != ModeStandard {
		return
	}
	if _, ok := f["IRMS2"]; !ok {
		if p, ok := f.product("IRMS1", "URMS1"); ok {
			f["PRMS"] = formatNumber(p)
		} else {
			log.Debugf("power: IRMS1/URMS1 missing or not numeric")
		}
		return
	}

	var isum, psum float64
	complete := true
	for _, phase := range []string{"1", "2", "3"} {
		i, iok := f.number("IRMS" + phase)
		p, pok := f.product("IRMS"+phase, "URMS"+phase)
		if pok {
			f["PRMS"+phase] = formatNumber(p)
		}
		if !iok || !pok {
			log.Debugf("power: phase %s incomplete", phase)
			complete = false
			continue
		}
		isum += i
		psum += p
	}
	if complete {
		f["IRMS"] = formatNumber(isum)
		f["PRMS"] = formatNumber(psum)
	}
}

func (f Frame) number(label string) (float64, bool) {
	s, ok := f[label].(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

func (f Frame) product(a, b string) (float64, bool) {
	x, ok1 := f.number(a)
	y, ok2 := f.number(b)
	return x * y, ok1 && ok2
}

func formatNumber(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) }
