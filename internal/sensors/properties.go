package sensors

// PropertyDefinition describes one vendor property and how to expose it.
type PropertyDefinition struct {
	Key               string
	Name              string
	Conversion        Conversion
	DeviceClass       string
	UnitOfMeasurement string
	StateClass        string
}

var packStateLabels = map[int]string{
	0: "idle",
	1: "charging",
	2: "discharging",
}

// DeviceProperties is the device-level property table.
var DeviceProperties = []PropertyDefinition{
	{"electricLevel", "Battery Level", Identity(), "battery", "%", "measurement"},
	{"socSet", "Charge Limit", DivideBy10(), "", "%", ""},
	{"minSoc", "Discharge Limit", DivideBy10(), "", "%", ""},
	{"outputHomePower", "Output Home Power", Identity(), "power", "W", "measurement"},
	{"solarInputPower", "Solar Input Power", Identity(), "power", "W", "measurement"},
	{"packInputPower", "Pack Input Power", Identity(), "power", "W", "measurement"},
	{"outputPackPower", "Output Pack Power", Identity(), "power", "W", "measurement"},
	{"gridInputPower", "Grid Input Power", Identity(), "power", "W", "measurement"},
	{"acOutputPower", "AC Output Power", Identity(), "power", "W", "measurement"},
	{"dcOutputPower", "DC Output Power", Identity(), "power", "W", "measurement"},
	{"solarPower1", "Solar Power 1", Identity(), "power", "W", "measurement"},
	{"solarPower2", "Solar Power 2", Identity(), "power", "W", "measurement"},
	{"outputLimit", "Output Limit", Identity(), "power", "W", ""},
	{"inputLimit", "Input Limit", Identity(), "power", "W", ""},
	{"inverseMaxPower", "Inverter Max Power", Identity(), "power", "W", ""},
	{"remainOutTime", "Remaining Discharge Time", Identity(), "duration", "min", "measurement"},
	{"remainInputTime", "Remaining Charge Time", Identity(), "duration", "min", "measurement"},
	{"packState", "Pack State", Enum(packStateLabels), "", "", ""},
	{"acMode", "AC Mode", Enum(map[int]string{1: "input", 2: "output"}), "", "", ""},
	{"passMode", "Bypass Mode", Enum(map[int]string{0: "auto", 1: "on", 2: "off"}), "", "", ""},
	{"hubState", "Hub State", Enum(map[int]string{0: "standby", 1: "shutdown"}), "", "", ""},
	{"packNum", "Pack Count", Identity(), "", "", ""},
	{"masterSwitch", "Master Switch", Identity(), "", "", ""},
	{"buzzerSwitch", "Buzzer", Identity(), "", "", ""},
	{"heatState", "Heating", Identity(), "", "", ""},
	{"autoRecover", "Auto Recover", Identity(), "", "", ""},
	{"wifiState", "WiFi State", Identity(), "", "", ""},
}

// PackProperties is the per-pack property table, keyed by the raw pack field.
var PackProperties = []PropertyDefinition{
	{"socLevel", "Level", Identity(), "battery", "%", "measurement"},
	{"maxTemp", "Max Temperature", DeciKelvin(), "temperature", "°C", "measurement"},
	{"maxVol", "Max Cell Voltage", Divide(100), "voltage", "V", "measurement"},
	{"minVol", "Min Cell Voltage", Divide(100), "voltage", "V", "measurement"},
	{"totalVol", "Total Voltage", Divide(100), "voltage", "V", "measurement"},
	{"batcur", "Current", Signed16Divide(10), "current", "A", "measurement"},
	{"power", "Power", Identity(), "power", "W", "measurement"},
	{"state", "State", Enum(packStateLabels), "", "", ""},
	{"softVersion", "Firmware", Identity(), "", "", ""},
}

var (
	deviceIndex = index(DeviceProperties)
	packIndex   = index(PackProperties)
)

func index(defs []PropertyDefinition) map[string]PropertyDefinition {
	m := make(map[string]PropertyDefinition, len(defs))
	for _, d := range defs {
		m[d.Key] = d
	}
	return m
}

// GetDeviceProperty returns the device-level definition for key, or nil.
func GetDeviceProperty(key string) *PropertyDefinition {
	if d, ok := deviceIndex[key]; ok {
		return &d
	}
	return nil
}

// GetPackProperty returns the pack-level definition for key, or nil.
func GetPackProperty(key string) *PropertyDefinition {
	if d, ok := packIndex[key]; ok {
		return &d
	}
	return nil
}

// PackStateLabel maps a pack state code to its label.
func PackStateLabel(code int) (string, bool) {
	l, ok := packStateLabels[code]
	return l, ok
}
