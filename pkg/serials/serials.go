// Package serials provides cleaning, validation, and product detection for
// production serial numbers pasted into the intake form. All functions are
// pure; they hold no state and are safe for concurrent use.
package serials

import (
	"regexp"
	"strings"
)

// Length bounds for a well-formed serial number.
const (
	MinLength = 2
	MaxLength = 50
)

var (
	// urlSerial extracts a serial embedded in a dashboard URL query string,
	// e.g. https://dashboard.hexmodal.com/lights/?s=HEXP-0001
	urlSerial = regexp.MustCompile(`[?&]s=([A-Za-z0-9._-]+)`)

	// charset is the full allowed alphabet for a serial number.
	charset = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Clean extracts serial numbers from free-form pasted text. Each non-empty
// line yields at most one serial; lines that look like dashboard URLs have
// the serial pulled out of the query string. Lines shorter than MinLength
// are dropped. Clean does not deduplicate or validate the charset; that is
// Validate's job.
func Clean(raw string) []string {
	cleaned := []string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		serial := line
		if m := urlSerial.FindStringSubmatch(line); m != nil {
			serial = m[1]
		}
		if len(serial) >= MinLength {
			cleaned = append(cleaned, serial)
		}
	}
	return cleaned
}

// Invalid describes a serial that failed validation and why.
type Invalid struct {
	Serial string `json:"serial"`
	Reason string `json:"reason"`
}

// ValidationResult partitions an input list into valid serials, duplicates
// of already-seen serials, and invalid entries with their rejection reason.
type ValidationResult struct {
	Valid      []string  `json:"valid"`
	Duplicates []string  `json:"duplicates"`
	Invalid    []Invalid `json:"invalid"`
}

// Validate checks each serial for duplicates, length bounds, and charset.
// The first occurrence of a serial is judged on its own merits; later
// occurrences are reported as duplicates regardless of validity. Input
// order is preserved within each partition.
func Validate(list []string) ValidationResult {
	result := ValidationResult{
		Valid:      []string{},
		Duplicates: []string{},
		Invalid:    []Invalid{},
	}
	seen := make(map[string]bool, len(list))

	for _, serial := range list {
		serial = strings.TrimSpace(serial)
		if serial == "" {
			continue
		}
		if seen[serial] {
			result.Duplicates = append(result.Duplicates, serial)
			continue
		}
		seen[serial] = true

		switch {
		case len(serial) < MinLength:
			result.Invalid = append(result.Invalid, Invalid{serial, "Too short"})
		case len(serial) > MaxLength:
			result.Invalid = append(result.Invalid, Invalid{serial, "Too long"})
		case !charset.MatchString(serial):
			result.Invalid = append(result.Invalid, Invalid{serial, "Invalid characters"})
		default:
			result.Valid = append(result.Valid, serial)
		}
	}

	return result
}

// prefixMapping ties a product name to the serial prefixes that identify it.
type prefixMapping struct {
	product  string
	prefixes []string
}

// prefixTable is scanned in order; more specific prefixes come first so
// that e.g. HEX-MOD-SHT wins over a hypothetical HEX-M entry.
var prefixTable = []prefixMapping{
	{"HEX-MOD-DHT", []string{"HEX-MOD-DHT", "HEXMODDHT"}},
	{"HEX-MOD-LHT", []string{"HEX-MOD-LHT", "HEXMODLHT"}},
	{"HEX-MOD-SHT", []string{"HEX-MOD-SHT", "HEXMODSHT"}},
	{"HEX-MOD-SDP", []string{"HEX-MOD-SDP", "HEXMODSDP"}},
	{"HEX-MOD-ULT", []string{"HEX-MOD-ULT", "HEXMODULT"}},
	{"HEX-T-C", []string{"HEX-T-C", "HEXTC"}},
	{"HEX-T-R", []string{"HEX-T-R", "HEXTR"}},
	{"HEX-P", []string{"HEX-P", "HEXP"}},
	{"HEX-N", []string{"HEX-N", "HEXN"}},
	{"HEX-W", []string{"HEX-W", "HEXW"}},
	{"HEX-G", []string{"HEX-G", "HEXG"}},
	{"HEX-L-S", []string{"HEX-L-S", "HEXLS"}},
	{"HEX-L-Z", []string{"HEX-L-Z", "HEXLZ"}},
}

// DetectProduct maps a serial number to its product family by prefix.
// Matching is case-insensitive and earliest-entry-wins over the prefix
// table. The second return value is false when no prefix matches.
func DetectProduct(serial string) (string, bool) {
	upper := strings.ToUpper(serial)
	for _, mapping := range prefixTable {
		for _, prefix := range mapping.prefixes {
			if strings.HasPrefix(upper, prefix) {
				return mapping.product, true
			}
		}
	}
	return "", false
}

// DeviceNames is the catalog of products selectable for a manufacturing
// order, mirroring the product list configured in the target Odoo instance.
var DeviceNames = []string{
	"BUTT-RedSquare", "CONN-Ext", "CR-7007GX", "CR-7007RX", "CR-7033A",
	"CR-7082", "CR-7108R", "DR-LT", "E-LightShell-NYC", "ExitSignShell-NYC",
	"FHUPS1-UNV-12L-SD", "FHUPS1-UNV-50L-SD", "HEX-A-1", "HEX-A-2", "HEX-A-R-1",
	"HEX-A-R-2", "HEX-C-2", "HEX-C-B-R", "HEX-C-G", "HEX-C-R", "HEX-D-P",
	"HEX-F", "HEX-F-Kit", "HEX-G", "HEX-L-S", "HEX-L-S-UNTESTED", "HEX-L-Z",
	"HEX-L-Z-UNTESTED", "HEX-M", "HEX-MOD-DHT", "HEX-MOD-DHT-UNCERT",
	"HEX-MOD-LHT", "HEX-MOD-LHT-NOSERIAL", "HEX-MOD-LHT-UNCERT", "HEX-MOD-SDP",
	"HEX-MOD-SDP-NOSERIAL", "HEX-MOD-SDP-UNCERT", "HEX-MOD-SHT",
	"HEX-MOD-SHT-NOSERIAL", "HEX-MOD-SHT-UNCERT", "HEX-MOD-ULT",
	"HEX-MOD-ULT-NOSERIAL", "HEX-MOD-ULT-UNCERT", "HEX-N", "HEX-P",
	"HEX-P-UNCAL", "HEX-P-UNCERT", "HEX-R-R", "HEX-T-Base", "HEX-T-C",
	"HEX-T-C-KIT", "HEX-T-C-UNCERT", "HEX-T-R", "HEX-T-R-UNCERT", "HEX-T-ULT",
	"HEX-W", "HEX-W-4", "HEX-X-B-R", "HEX-X-G", "HEX-X-R", "HIS-HEX-A-C-1",
	"HIS-HEX-C-G", "HIS-HEX-C-R", "HIS-HEX-L-S", "HIS-HEX-N", "HIS-HEX-P",
	"HIS-HEX-R-R", "HIS-HEX-T-C", "HIS-HEX-W", "HIS-HEX-X-G", "HIS-HEX-X-R",
	"Hex-A-C-1", "Hex-A-C-2", "Hex-A-G", "Hex-D-S", "LEDIndicator-01",
	"LEDStrip-Green", "LEDStrip-NYC", "LEDStrip-Red",
}
