// Package gattdb maps the GATT UUIDs relevant to blood pressure cuffs onto
// their Bluetooth SIG assigned names, and normalizes the various UUID
// spellings (short form, 0x prefix, full 128-bit, braces) into one lookup key.
package gattdb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb with dashes stripped.
const sigBaseSuffix = "00001000800000805f9b34fb"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"fe4a": "Omron Vendor Service",
}

var characteristics = map[string]string{
	"2a19": "Battery Level",
	"2a23": "System ID",
	"2a24": "Model Number String",
	"2a29": "Manufacturer Name String",
	"2a35": "Blood Pressure Measurement",
	"2a36": "Intermediate Cuff Pressure",
	"2a49": "Blood Pressure Feature",
}

// NormalizeUUID lowers the UUID, strips dashes, braces and an optional 0x
// prefix, and reduces full SIG-base 128-bit UUIDs to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.ReplaceAll(u, "-", "")
	u = strings.TrimPrefix(u, "0x")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// LookupService returns the assigned name for a service UUID, or "" if
// unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the assigned name for a characteristic UUID,
// or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}
