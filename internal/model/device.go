package model

// Device is a printer in the catalog, identified by its network address.
type Device struct {
	// Address is the host (and optional port) the status page is fetched from.
	Address string `yaml:"address"`
	// Model is the key into the ConsumableMap.
	Model  string `yaml:"model"`
	Site   string `yaml:"site"`
	Name   string `yaml:"name"`
	Serial string `yaml:"serial"`
	Active bool   `yaml:"active"`
}

// Devices is a list of catalog devices.
type Devices []Device

// ByAddress returns the devices keyed by address.
func (d Devices) ByAddress() map[string]Device {
	m := make(map[string]Device, len(d))
	for _, device := range d {
		m[device.Address] = device
	}

	return m
}
