package domain

import "strings"

// Biller names known to the gateway
const (
	BillerRocketgate = "rocketgate"
	BillerNetbilling = "netbilling"
	BillerEpoch      = "epoch"
	BillerQysso      = "qysso"
	BillerCentrobill = "centrobill"
)

// Biller is an external payment processor and its capability flags
type Biller struct {
	Name              string `json:"name" yaml:"name"`
	ID                string `json:"id" yaml:"id"`
	ThirdParty        bool   `json:"third_party" yaml:"third_party"`
	Supports3DS       bool   `json:"supports_3ds" yaml:"supports_3ds"`
	DefaultMaxSubmits int    `json:"default_max_submits" yaml:"default_max_submits"`
}

// IsZero reports whether b is the empty biller
func (b Biller) IsZero() bool {
	return b.Name == ""
}

// BillerDirectory maps biller names to their capabilities. It holds no state
// beyond the table it was built with.
type BillerDirectory struct {
	billers map[string]Biller
}

// NewBillerDirectory builds a directory from the given billers. Names are
// matched case-insensitively.
func NewBillerDirectory(billers ...Biller) *BillerDirectory {
	d := &BillerDirectory{billers: make(map[string]Biller, len(billers))}
	for _, b := range billers {
		if b.DefaultMaxSubmits < 1 {
			b.DefaultMaxSubmits = 1
		}
		d.billers[strings.ToLower(b.Name)] = b
	}
	return d
}

// DefaultBillerDirectory returns the billers the gateway ships with
func DefaultBillerDirectory() *BillerDirectory {
	return NewBillerDirectory(
		Biller{Name: BillerRocketgate, ID: "23423", Supports3DS: true, DefaultMaxSubmits: 2},
		Biller{Name: BillerNetbilling, ID: "23424", Supports3DS: false, DefaultMaxSubmits: 1},
		Biller{Name: BillerEpoch, ID: "23425", ThirdParty: true, DefaultMaxSubmits: 1},
		Biller{Name: BillerQysso, ID: "23426", ThirdParty: true, DefaultMaxSubmits: 1},
		Biller{Name: BillerCentrobill, ID: "23427", Supports3DS: true, DefaultMaxSubmits: 1},
	)
}

// Lookup returns the biller registered under name
func (d *BillerDirectory) Lookup(name string) (Biller, bool) {
	b, ok := d.billers[strings.ToLower(name)]
	return b, ok
}

// Names returns every registered biller name
func (d *BillerDirectory) Names() []string {
	names := make([]string, 0, len(d.billers))
	for name := range d.billers {
		names = append(names, name)
	}
	return names
}
