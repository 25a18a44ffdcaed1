package entities

type binaryStates struct {
	off string
	on  string
}

// deviceClassStates maps binary sensor device classes to their on/off wording
var deviceClassStates = map[string]binaryStates{
	"battery":          {off: "Normal", on: "Low"},
	"battery_charging": {off: "Not charging", on: "Charging"},
	"carbon_monoxide":  {off: "Clear", on: "Detected"},
	"cold":             {off: "Normal", on: "Cold"},
	"connectivity":     {off: "Disconnected", on: "Connected"},
	"door":             {off: "Closed", on: "Open"},
	"garage_door":      {off: "Closed", on: "Open"},
	"gas":              {off: "Clear", on: "Detected"},
	"heat":             {off: "Normal", on: "Hot"},
	"light":            {off: "No light", on: "Light detected"},
	"lock":             {off: "Locked", on: "Unlocked"},
	"moisture":         {off: "Dry", on: "Wet"},
	"motion":           {off: "Clear", on: "Detected"},
	"moving":           {off: "Not moving", on: "Moving"},
	"occupancy":        {off: "Clear", on: "Detected"},
	"opening":          {off: "Closed", on: "Open"},
	"plug":             {off: "Unplugged", on: "Plugged in"},
	"power":            {off: "Off", on: "On"},
	"presence":         {off: "Away", on: "Home"},
	"problem":          {off: "OK", on: "Problem"},
	"running":          {off: "Not running", on: "Running"},
	"safety":           {off: "Safe", on: "Unsafe"},
	"smoke":            {off: "Clear", on: "Detected"},
	"sound":            {off: "Clear", on: "Detected"},
	"tamper":           {off: "Clear", on: "Tampering detected"},
	"update":           {off: "Up-to-date", on: "Update available"},
	"vibration":        {off: "Clear", on: "Detected"},
	"window":           {off: "Closed", on: "Open"},
}

// ReadableState turns a raw on/off state into wording for the device class.
// Anything not in the table is returned unchanged.
func ReadableState(deviceClass, state string) string {
	states, ok := deviceClassStates[deviceClass]
	if !ok {
		return state
	}
	switch state {
	case "off":
		return states.off
	case "on":
		return states.on
	default:
		return state
	}
}
