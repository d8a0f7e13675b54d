package models

import (
	"sort"
	"strings"
	"unicode"
)

// SepaPurpose is a structured key embedded in free-text remittance information.
type SepaPurpose int

// Declaration order is the scan order used by ExtractSepaPurposes.
const (
	SepaEREF SepaPurpose = iota
	SepaKREF
	SepaMREF
	SepaBREF
	SepaRREF
	SepaCRED
	SepaDEBT
	SepaCOAM
	SepaOAMT
	SepaSVWZ
	SepaABWA
	SepaABWE
	SepaIBAN
	SepaBIC
)

var sepaPurposeNames = [...]string{
	"EREF", "KREF", "MREF", "BREF", "RREF", "CRED", "DEBT",
	"COAM", "OAMT", "SVWZ", "ABWA", "ABWE", "IBAN", "BIC",
}

// AllSepaPurposes lists every purpose in declaration order.
func AllSepaPurposes() []SepaPurpose {
	out := make([]SepaPurpose, len(sepaPurposeNames))
	for i := range sepaPurposeNames {
		out[i] = SepaPurpose(i)
	}
	return out
}

func (p SepaPurpose) String() string {
	if p < 0 || int(p) >= len(sepaPurposeNames) {
		return "UNKNOWN"
	}
	return sepaPurposeNames[p]
}

// MarshalText lets purposes be used as JSON object keys.
func (p SepaPurpose) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ExtractSepaPurposes finds every "<KEY>+" prefix in description and returns
// the text between each prefix and the next one found (or the end).
// Only the first occurrence of each key counts.
func ExtractSepaPurposes(description string) map[SepaPurpose]string {
	type hit struct {
		idx     int
		purpose SepaPurpose
	}

	var hits []hit
	for _, p := range AllSepaPurposes() {
		if idx := strings.Index(description, p.String()+"+"); idx >= 0 {
			hits = append(hits, hit{idx: idx, purpose: p})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].idx < hits[j].idx })

	purposes := make(map[SepaPurpose]string, len(hits))
	for i, h := range hits {
		begin := h.idx + len(h.purpose.String()) + 1
		end := len(description)
		if i < len(hits)-1 {
			end = hits[i+1].idx
		}
		if begin > end {
			// overlapping prefixes
			begin = end
		}
		purposes[h.purpose] = description[begin:end]
	}
	return purposes
}

func trimRightSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
