package protocol

// System is the power-state notification a Redfish emulator PUTs to the
// fake agent fleet.
type System struct {
	UUID         string        `json:"uuid"`
	Name         string        `json:"name"`
	PowerState   string        `json:"power_state,omitempty"`
	BootDevice   string        `json:"boot_device,omitempty"`
	NICs         []NIC         `json:"nics,omitempty"`
	PendingPower *PendingPower `json:"pending_power,omitempty"`
}

type NIC struct {
	MAC  string `json:"mac"`
	IP   string `json:"ip,omitempty"`
	Name string `json:"name,omitempty"`
}

type PendingPower struct {
	PowerState string  `json:"power_state"`
	ApplyTime  float64 `json:"apply_time,omitempty"`
}

const (
	PowerStateOn  = "On"
	BootDeviceHdd = "Hdd"
)

// PrimaryMAC is the address used for lookup and as the inspection boot
// interface.
func (s System) PrimaryMAC() string {
	if len(s.NICs) == 0 {
		return ""
	}
	return s.NICs[0].MAC
}
