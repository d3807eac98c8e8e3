package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Connectivity action types.
const (
	ActionSetVLAN    = "setVlan"
	ActionRemoveVLAN = "removeVlan"
)

// Port modes requested by the platform.
const (
	ModeAccess = "access"
	ModeTrunk  = "trunk"
)

// Attribute names carried in vlanServiceAttributes.
const (
	AttrQnQ  = "QnQ"
	AttrCTag = "CTag"
)

// ConnectivityRequest is the platform's request to change port VLANs.
type ConnectivityRequest struct {
	DriverRequest struct {
		Actions []ConnectivityAction `json:"actions"`
	} `json:"driverRequest"`
}

// ConnectivityAction is one VLAN change on one port.
type ConnectivityAction struct {
	ActionID               string           `json:"actionId"`
	Type                   string           `json:"type"`
	ConnectionID           string           `json:"connectionId"`
	ConnectionParams       ConnectionParams `json:"connectionParams"`
	ConnectorAttributes    []NamedAttribute `json:"connectorAttributes"`
	ActionTarget           ActionTarget     `json:"actionTarget"`
	CustomActionAttributes []NamedAttribute `json:"customActionAttributes"`
}

// ConnectionParams carries the VLAN settings of an action.
type ConnectionParams struct {
	VLANID                string           `json:"vlanId"`
	Mode                  string           `json:"mode"`
	VLANServiceAttributes []NamedAttribute `json:"vlanServiceAttributes"`
	Type                  string           `json:"type"`
}

// ActionTarget names the port an action applies to.
type ActionTarget struct {
	FullName    string `json:"fullName"`
	FullAddress string `json:"fullAddress"`
}

// NamedAttribute is a name/value pair in platform payloads.
type NamedAttribute struct {
	AttributeName  string `json:"attributeName"`
	AttributeValue string `json:"attributeValue"`
	Type           string `json:"type,omitempty"`
}

// ParseConnectivityRequest decodes and validates a request.
func ParseConnectivityRequest(data string) (*ConnectivityRequest, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("connectivity request is empty")
	}
	var req ConnectivityRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, fmt.Errorf("parsing connectivity request: %w", err)
	}
	for i, a := range req.DriverRequest.Actions {
		if a.ActionID == "" {
			return nil, fmt.Errorf("connectivity action %d has no actionId", i)
		}
		if a.Type != ActionSetVLAN && a.Type != ActionRemoveVLAN {
			return nil, fmt.Errorf("connectivity action %s: unsupported type %q", a.ActionID, a.Type)
		}
	}
	return &req, nil
}

// Mode returns the normalized port mode (access or trunk).
func (a *ConnectivityAction) Mode() string {
	return strings.ToLower(strings.TrimSpace(a.ConnectionParams.Mode))
}

// ServiceAttribute returns a vlanServiceAttributes value by name.
func (a *ConnectivityAction) ServiceAttribute(name string) string {
	for _, attr := range a.ConnectionParams.VLANServiceAttributes {
		if strings.EqualFold(attr.AttributeName, name) {
			return attr.AttributeValue
		}
	}
	return ""
}

// IsQnQ reports whether the action asks for an 802.1Q tunnel port.
func (a *ConnectivityAction) IsQnQ() bool {
	return strings.EqualFold(strings.TrimSpace(a.ServiceAttribute(AttrQnQ)), "true")
}

// Interface returns the switch interface targeted by the action.
func (a *ConnectivityAction) Interface() string {
	return InterfaceFromResource(a.ActionTarget.FullName)
}

// ConnectivityResponse is returned to the platform.
type ConnectivityResponse struct {
	DriverResponse struct {
		ActionResults []ActionResult `json:"actionResults"`
	} `json:"driverResponse"`
}

// ActionResult reports the outcome of one action.
type ActionResult struct {
	ActionID         string `json:"actionId"`
	Type             string `json:"type"`
	UpdatedInterface string `json:"updatedInterface"`
	InfoMessage      string `json:"infoMessage"`
	ErrorMessage     string `json:"errorMessage"`
	Success          bool   `json:"success"`
}

// NewActionResult builds the result of a finished action.
func NewActionResult(a *ConnectivityAction, err error, info string) ActionResult {
	r := ActionResult{
		ActionID:         a.ActionID,
		Type:             a.Type,
		UpdatedInterface: a.ActionTarget.FullName,
		Success:          err == nil,
	}
	if err != nil {
		r.ErrorMessage = err.Error()
	} else {
		r.InfoMessage = info
	}
	return r
}

// JSON encodes the response.
func (r *ConnectivityResponse) JSON() (string, error) {
	if r.DriverResponse.ActionResults == nil {
		r.DriverResponse.ActionResults = []ActionResult{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
