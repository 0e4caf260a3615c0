package protocol

// InspectionRequest is posted to the inspection callback URL.
type InspectionRequest struct {
	BootInterface string    `json:"boot_interface"`
	Inventory     Inventory `json:"inventory"`
}

type Inventory struct {
	Interfaces []InventoryInterface `json:"interfaces"`
	CPU        InventoryCPU         `json:"cpu"`
}

type InventoryInterface struct {
	LLDP        any    `json:"lldp"`
	Product     string `json:"product"`
	Vendor      string `json:"vendor"`
	Name        string `json:"name"`
	HasCarrier  bool   `json:"has_carrier"`
	IPv4Address string `json:"ipv4_address"`
	ClientID    any    `json:"client_id"`
	MACAddress  string `json:"mac_address"`
}

type InventoryCPU struct {
	Count        int      `json:"count"`
	Frequency    string   `json:"frequency"`
	Flags        []string `json:"flags"`
	Architecture string   `json:"architecture"`
}

type InspectionResponse struct {
	UUID string `json:"uuid"`
}
