package sensors

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StateOnline is the primary state for a report without a level or pack state.
const StateOnline = "online"

// identificationFields are copied verbatim from the top level of a report.
var identificationFields = []string{"messageId", "product", "deviceId", "timestamp"}

// Result is the outcome of decoding one inbound message.
type Result struct {
	// State is the primary state; only meaningful when HasState is true.
	State    string
	HasState bool
	// Attributes holds the normalized attribute set.
	Attributes map[string]any
	// Report is true when the payload carried properties or pack data and
	// therefore describes the full device status.
	Report bool
}

// Decode turns a raw MQTT payload into normalized attributes and a primary
// state. It never fails: anything that is not a JSON object is passed
// through as a raw string keyed by topic.
func Decode(topic string, payload []byte) Result {
	raw := string(payload)

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return passthrough(topic, raw)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return passthrough(topic, raw)
	}

	res := Result{Attributes: make(map[string]any)}

	for _, f := range identificationFields {
		if v, ok := obj[f]; ok {
			res.Attributes[f] = v
		}
	}

	props, hasProps := obj["properties"].(map[string]any)
	if hasProps {
		res.Report = true
		for k, v := range props {
			if def := GetDeviceProperty(k); def != nil {
				res.Attributes[k] = def.Conversion.Apply(v)
			} else {
				res.Attributes[k] = v
			}
		}
	}

	if packs, ok := obj["packData"].([]any); ok {
		res.Report = true
		decodePacks(packs, res.Attributes)
	}

	res.State, res.HasState = primaryState(props, hasProps)
	return res
}

func passthrough(topic, raw string) Result {
	return Result{
		State:      raw,
		HasState:   true,
		Attributes: map[string]any{topic: raw},
	}
}

// decodePacks flattens packData into pack_<sn>_<field> attributes. Entries
// that are not objects or lack a usable serial number are skipped.
func decodePacks(packs []any, attrs map[string]any) {
	attrs["pack_count"] = len(packs)
	for _, p := range packs {
		pack, ok := p.(map[string]any)
		if !ok {
			continue
		}
		sn, ok := serial(pack["sn"])
		if !ok {
			continue
		}
		for k, v := range pack {
			if k == "sn" {
				continue
			}
			key := fmt.Sprintf("pack_%s_%s", sn, k)
			if def := GetPackProperty(k); def != nil {
				attrs[key] = def.Conversion.Apply(v)
			} else {
				attrs[key] = v
			}
		}
	}
}

func serial(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case float64:
		return FormatValue(s), true
	default:
		return "", false
	}
}

// primaryState prefers the battery level, then the pack state, then a plain
// "online" marker for any report that carried properties.
func primaryState(props map[string]any, hasProps bool) (string, bool) {
	if !hasProps {
		return "", false
	}
	if v, ok := props["electricLevel"]; ok && v != nil {
		return FormatValue(v), true
	}
	if v, ok := props["packState"]; ok && v != nil {
		if f, ok := toFloat(v); ok && f == float64(int(f)) {
			if label, ok := PackStateLabel(int(f)); ok {
				return label, true
			}
		}
		return FormatValue(v), true
	}
	return StateOnline, true
}

// FormatValue renders a decoded JSON value as a state string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
