package zendure

import (
	"fmt"
	"strings"
)

// Model identifies a supported Zendure device family.
type Model string

const (
	ModelHub1200   Model = "hub1200"
	ModelHub2000   Model = "hub2000"
	ModelAIO2400   Model = "aio2400"
	ModelAce1500   Model = "ace1500"
	ModelHyper2000 Model = "hyper2000"
)

// Models lists every supported model in display order.
var Models = []Model{
	ModelHub1200,
	ModelHub2000,
	ModelAIO2400,
	ModelAce1500,
	ModelHyper2000,
}

// productIDs maps a model to the vendor-assigned product key used as the
// first topic segment.
var productIDs = map[Model]string{
	ModelHub1200:   "73bkTV",
	ModelHub2000:   "A8yh63",
	ModelAIO2400:   "yWF7hV",
	ModelAce1500:   "8bM93H",
	ModelHyper2000: "ja72U0ha",
}

// ParseModel resolves a case-insensitive model name.
func ParseModel(s string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := productIDs[m]; !ok {
		return "", fmt.Errorf("unknown device model %q (supported: %s)", s, strings.Join(ModelNames(), ", "))
	}
	return m, nil
}

// ModelNames returns the supported models as plain strings.
func ModelNames() []string {
	names := make([]string, 0, len(Models))
	for _, m := range Models {
		names = append(names, string(m))
	}
	return names
}

// ProductID returns the vendor product key for the model. The second return
// value is false for unknown models.
func (m Model) ProductID() (string, bool) {
	id, ok := productIDs[m]
	return id, ok
}

// Upper returns the model name as shown to users, e.g. "HUB2000".
func (m Model) Upper() string { return strings.ToUpper(string(m)) }
