package domain

import (
	"maps"
	"reflect"
	"time"

	"github.com/jkaberg/zendure-hass/internal/zendure"
)

// volatileAttributes change with every report without describing the device
// state; they are ignored for change detection.
var volatileAttributes = []string{"messageId", "timestamp"}

// Snapshot is the outward view of one device at a point in time.
type Snapshot struct {
	DeviceID   string
	Model      zendure.Model
	Available  bool
	State      string
	Attributes map[string]any
	Timestamp  time.Time
}

// Clone returns a copy whose attribute map can be used independently.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Attributes = maps.Clone(s.Attributes)
	return &c
}

// Changed returns true if *cur* differs from *prev*. Timestamps and the
// per-message identification attributes are ignored.
func Changed(prev, cur *Snapshot) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}

	p, c := *prev, *cur // copy
	p.Timestamp = time.Time{}
	c.Timestamp = time.Time{}
	p.Attributes = stripVolatile(p.Attributes)
	c.Attributes = stripVolatile(c.Attributes)

	return !reflect.DeepEqual(p, c)
}

func stripVolatile(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	for _, k := range volatileAttributes {
		delete(out, k)
	}
	return out
}
