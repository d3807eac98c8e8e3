// Package model defines the data exchanged between the driver, its flows
// and the orchestration platform.
package model

import "strings"

// Interface is one switch interface as discovered over SNMP.
type Interface struct {
	Index       int      `json:"index"`       // ifIndex
	Name        string   `json:"name"`        // ifDescr, e.g. "Ethernet1/1", "port-channel10"
	Description string   `json:"description"` // ifAlias
	Type        string   `json:"type"`        // ifType name, e.g. "ethernetCsmacd"
	MTU         int      `json:"mtu"`
	Speed       int64    `json:"speed"` // bits per second
	MAC         string   `json:"mac,omitempty"`
	AdminStatus string   `json:"admin_status,omitempty"`
	OperStatus  string   `json:"oper_status,omitempty"`
	IPv4Addrs   []string `json:"ipv4_addrs,omitempty"`
	IPv6Addrs   []string `json:"ipv6_addrs,omitempty"`

	// PortChannel is the parent port-channel of a member port
	PortChannel string `json:"port_channel,omitempty"`
	// Members of a port-channel
	Members []string `json:"members,omitempty"`
}

// IsPhysical returns true for front-panel Ethernet ports
func (i *Interface) IsPhysical() bool {
	return strings.HasPrefix(strings.ToLower(i.Name), "ethernet")
}

// IsPortChannel returns true for port-channel interfaces
func (i *Interface) IsPortChannel() bool {
	return strings.HasPrefix(strings.ToLower(i.Name), "port-channel")
}

// IsManagement returns true for the out-of-band management port
func (i *Interface) IsManagement() bool {
	return strings.HasPrefix(strings.ToLower(i.Name), "mgmt")
}

// IsPortChannelMember returns true if the port belongs to a port-channel
func (i *Interface) IsPortChannelMember() bool {
	return i.PortChannel != ""
}

// PortResourceName converts an interface name into a platform resource
// name. The platform reserves '/' as the address separator.
//
// "Ethernet1/1" -> "Ethernet1-1"
func PortResourceName(ifName string) string {
	return strings.ReplaceAll(ifName, "/", "-")
}

// InterfaceFromResource recovers the interface name from a port's platform
// full name or full address. Only the last path element is used.
//
// "nx-core-1/Chassis 1/Ethernet1-1" -> "Ethernet1/1"
func InterfaceFromResource(fullName string) string {
	name := fullName
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "port-channel"):
		return "port-channel" + name[len("port-channel"):]
	case strings.HasPrefix(lower, "ethernet"):
		return "Ethernet" + strings.ReplaceAll(name[len("ethernet"):], "-", "/")
	}
	return strings.ReplaceAll(name, "-", "/")
}
