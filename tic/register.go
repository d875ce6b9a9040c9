package tic

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Invalid is decoded value of bit group outside of enumeration.
const Invalid = "INVALID"

// Enum maps bit group value to name. Empty name is a hole in enumeration.
// Values without name decode to Default, which is either Invalid or
// the base state when zero/unknown legitimately means "nothing special".
type Enum struct {
	Names   []string
	Default string
}

func (e *Enum) Name(v uint32) string {
	if v < uint32(len(e.Names)) && e.Names[v] != "" {
		return e.Names[v]
	}
	return e.Default
}

// BitField is Width bits starting at Low (bit 0 is least significant).
// Without Enum, value is stored as int.
type BitField struct {
	Label string
	Low   uint8
	Width uint8
	Enum  *Enum
}

func (f *BitField) Raw(v uint32) uint32 { return (v >> f.Low) & (1<<f.Width - 1) }

func (f *BitField) Decode(v uint32) interface{} {
	raw := f.Raw(v)
	if f.Enum != nil {
		return f.Enum.Name(raw)
	}
	return int(raw)
}

type Register struct {
	Label  string
	Base   int
	Fields []BitField
}

// Decode parses register value and stores every bit field into frame.
// On parse error frame is not modified.
func (r *Register) Decode(value string, frame Frame) error {
	v, err := strconv.ParseUint(strings.TrimSpace(value), r.Base, 32)
	if err != nil {
		return errors.Annotatef(err, "register %s value=%q", r.Label, value)
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		frame[f.Label] = f.Decode(uint32(v))
	}
	return nil
}

var (
	EnumCutOff = &Enum{Default: Invalid, Names: []string{
		"Ferme",
		"Ouvert sur surpuissance",
		"Ouvert sur surtension",
		"Ouvert sur delestage",
		"Ouvert sur ordre CPL ou Euridis",
		"Ouvert sur surchauffe avec I > Imax",
		"Ouvert sur surchauffe avec I < Imax",
	}}
	EnumProducer       = &Enum{Default: "Consommateur", Names: []string{"Consommateur", "Producteur"}}
	EnumSupplierTariff = &Enum{Default: Invalid, Names: []string{
		"EASF01", "EASF02", "EASF03", "EASF04", "EASF05",
		"EASF06", "EASF07", "EASF08", "EASF09", "EASF10",
	}}
	EnumDistributorTariff = &Enum{Default: "EASD01", Names: []string{"EASD01", "EASD02", "EASD03", "EASD04"}}
	EnumEuridis           = &Enum{Default: Invalid, Names: []string{"Desactivee", "Activee sans securite", "", "Activee avec securite"}}
	EnumPLC               = &Enum{Default: Invalid, Names: []string{"New/Unlock", "New/Lock", "Registered"}}
	EnumDayColor          = &Enum{Default: "Sans Annonce", Names: []string{"Sans Annonce", "BLEU", "BLANC", "ROUGE"}}
)

// RegisterSTGE is standard mode status register, 32 bit hex.
var RegisterSTGE = Register{Label: "STGE", Base: 16, Fields: []BitField{
	{Label: "STGE01", Low: 0, Width: 1},                               // dry contact
	{Label: "STGE02", Low: 1, Width: 3, Enum: EnumCutOff},             // cut-off device
	{Label: "STGE03", Low: 4, Width: 1},                               // distributor terminal cover
	{Label: "STGE04", Low: 6, Width: 1},                               // overvoltage on a phase
	{Label: "STGE05", Low: 7, Width: 1},                               // reference power exceeded
	{Label: "STGE06", Low: 8, Width: 1, Enum: EnumProducer},           // producer/consumer
	{Label: "STGE07", Low: 9, Width: 1},                               // active energy direction
	{Label: "STGE08", Low: 10, Width: 4, Enum: EnumSupplierTariff},    // supplier tariff index
	{Label: "STGE09", Low: 14, Width: 2, Enum: EnumDistributorTariff}, // distributor tariff index
	{Label: "STGE10", Low: 16, Width: 1},                              // clock degraded mode
	{Label: "STGE11", Low: 17, Width: 1},                              // TIC output state
	{Label: "STGE12", Low: 19, Width: 2, Enum: EnumEuridis},           // Euridis link
	{Label: "STGE13", Low: 21, Width: 2, Enum: EnumPLC},               // PLC status
	{Label: "STGE14", Low: 23, Width: 1},                              // PLC synchronisation
	{Label: "STGE15", Low: 24, Width: 2, Enum: EnumDayColor},          // color of today
	{Label: "STGE16", Low: 26, Width: 2, Enum: EnumDayColor},          // color of tomorrow
	{Label: "STGE17", Low: 28, Width: 2},                              // mobile peak notice
	{Label: "STGE18", Low: 30, Width: 2},                              // mobile peak
}}

// RegisterRELAIS is standard mode relay states, 8 bit decimal.
var RegisterRELAIS = Register{Label: "RELAIS", Base: 10, Fields: []BitField{
	{Label: "RELAIS01", Low: 0, Width: 1},
	{Label: "RELAIS02", Low: 1, Width: 1},
	{Label: "RELAIS03", Low: 2, Width: 1},
	{Label: "RELAIS04", Low: 3, Width: 1},
	{Label: "RELAIS05", Low: 4, Width: 1},
	{Label: "RELAIS06", Low: 5, Width: 1},
	{Label: "RELAIS07", Low: 6, Width: 1},
	{Label: "RELAIS08", Low: 7, Width: 1},
}}

// RegisterPPOT is historic three-phase potential presence, 8 bit hex. Bit 0 is unused.
var RegisterPPOT = Register{Label: "PPOT", Base: 16, Fields: []BitField{
	{Label: "PPOT1", Low: 1, Width: 1},
	{Label: "PPOT2", Low: 2, Width: 1},
	{Label: "PPOT3", Low: 3, Width: 1},
}}

var registers = map[string]*Register{
	RegisterSTGE.Label:   &RegisterSTGE,
	RegisterRELAIS.Label: &RegisterRELAIS,
	RegisterPPOT.Label:   &RegisterPPOT,
}

// LookupRegister returns nil for plain labels.
func LookupRegister(label string) *Register { return registers[label] }

// DecodeRegister expands composite register value into its sub-fields.
func DecodeRegister(label, value string) (Frame, error) {
	r := LookupRegister(label)
	if r == nil {
		return nil, errors.NotFoundf("register %s", label)
	}
	f := make(Frame, len(r.Fields))
	if err := r.Decode(value, f); err != nil {
		return nil, err
	}
	return f, nil
}
