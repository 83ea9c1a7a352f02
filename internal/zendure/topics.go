package zendure

import "fmt"

// Topics holds the fixed MQTT topics for a single device.
type Topics struct {
	Report     string // device status reports
	WriteReply string // acknowledgements of property writes
	Wildcard   string // everything below the device
	Write      string // outbound property writes
}

// TopicsFor builds the topic set for a product key and device ID.
func TopicsFor(productID, deviceID string) Topics {
	base := fmt.Sprintf("/%s/%s", productID, deviceID)
	return Topics{
		Report:     base + "/properties/report",
		WriteReply: base + "/properties/write/reply",
		Wildcard:   base + "/#",
		Write:      fmt.Sprintf("iot/%s/%s/properties/write", productID, deviceID),
	}
}

// Subscriptions returns the topics a connection subscribes to, in order.
func (t Topics) Subscriptions() []string {
	return []string{t.Report, t.WriteReply, t.Wildcard}
}

// IsDirect reports whether topic is served by one of the specific
// (non-wildcard) subscriptions.
func (t Topics) IsDirect(topic string) bool {
	return topic == t.Report || topic == t.WriteReply
}
