package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nxshell/nxshell/pkg/util"
)

// ===================== Interface Tests =====================

func TestInterface_Kinds(t *testing.T) {
	tests := []struct {
		name                        string
		physical, portChannel, mgmt bool
	}{
		{"Ethernet1/1", true, false, false},
		{"ethernet1/49/2", true, false, false},
		{"port-channel10", false, true, false},
		{"mgmt0", false, false, true},
		{"Vlan100", false, false, false},
		{"", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &Interface{Name: tt.name}
			if got := i.IsPhysical(); got != tt.physical {
				t.Errorf("IsPhysical() = %v, want %v", got, tt.physical)
			}
			if got := i.IsPortChannel(); got != tt.portChannel {
				t.Errorf("IsPortChannel() = %v, want %v", got, tt.portChannel)
			}
			if got := i.IsManagement(); got != tt.mgmt {
				t.Errorf("IsManagement() = %v, want %v", got, tt.mgmt)
			}
		})
	}

	member := &Interface{Name: "Ethernet1/2", PortChannel: "port-channel10"}
	if !member.IsPortChannelMember() {
		t.Error("IsPortChannelMember() should be true")
	}
}

func TestPortNames(t *testing.T) {
	tests := []struct {
		resource string
		want     string
	}{
		{"nx-core-1/Chassis 1/Ethernet1-1", "Ethernet1/1"},
		{"Ethernet1-49-2", "Ethernet1/49/2"},
		{"ethernet1-3", "Ethernet1/3"},
		{"nx-core-1/port-channel10", "port-channel10"},
		{"nx/CH1/M1/P1", "P1"},
	}
	for _, tt := range tests {
		if got := InterfaceFromResource(tt.resource); got != tt.want {
			t.Errorf("InterfaceFromResource(%q) = %q, want %q", tt.resource, got, tt.want)
		}
	}

	if got := PortResourceName("Ethernet1/49/2"); got != "Ethernet1-49-2" {
		t.Errorf("PortResourceName = %q", got)
	}
	if got := InterfaceFromResource(PortResourceName("Ethernet2/7")); got != "Ethernet2/7" {
		t.Errorf("port name does not survive conversion: %q", got)
	}
}

// ===================== AutoLoad Tests =====================

func TestAutoLoadBuilder(t *testing.T) {
	b := NewAutoLoadBuilder("Cisco NXOS Switch 2G", "nx-core-1")
	b.SetRootAttribute("OS Version", "9.3(8)")
	b.AddResource(ModelChassis, "Chassis 1", "CH1", map[string]string{"Serial Number": "FDO1"})
	b.AddResource(ModelPort, "Ethernet1-10", "CH1/M1/P10", map[string]string{"MTU": "1500", "Port Description": "uplink"})
	b.AddResource(ModelPort, "Ethernet1-9", "CH1/M1/P9", nil)
	b.AddResource(ModelModule, "Module 1", "CH1/M1", nil)
	b.AddResource(ModelModule, "Duplicate", "CH1/M1", nil)
	b.AddResource(ModelPortChannel, "port-channel10", "PC10", nil)

	if !b.Has("CH1/M1") || b.Has("CH2") {
		t.Error("Has() mismatch")
	}

	d := b.Build()
	var order []string
	for _, r := range d.Resources {
		order = append(order, r.RelativeAddress)
	}
	want := "CH1,CH1/M1,CH1/M1/P9,CH1/M1/P10,PC10"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}

	m, ok := d.Find("CH1/M1")
	if !ok || m.Name != "Module 1" {
		t.Errorf("duplicate address should keep the first resource, got %+v", m)
	}
	if m.UniqueIdentifier != "nx-core-1.CH1.M1" {
		t.Errorf("UniqueIdentifier = %q", m.UniqueIdentifier)
	}

	if v, ok := d.Attribute("", "OS Version"); !ok || v != "9.3(8)" {
		t.Errorf("root OS Version = %q, %v", v, ok)
	}
	if v, ok := d.Attribute("CH1/M1/P10", "Port Description"); !ok || v != "uplink" {
		t.Errorf("port description = %q, %v", v, ok)
	}
	for _, a := range d.Attributes {
		if a.RelativeAddress == "CH1" && a.AttributeName != "Cisco NXOS Switch 2G.GenericChassis.Serial Number" {
			t.Errorf("chassis attribute name = %q", a.AttributeName)
		}
	}
}

// ===================== Connectivity Tests =====================

const connectivityRequest = `{
  "driverRequest": {
    "actions": [
      {
        "connectionId": "c1",
        "connectionParams": {
          "vlanId": "10-12,20",
          "mode": "Trunk",
          "vlanServiceAttributes": [
            {"attributeName": "QnQ", "attributeValue": "False"},
            {"attributeName": "CTag", "attributeValue": ""}
          ],
          "type": "setVlanParameter"
        },
        "connectorAttributes": [],
        "actionTarget": {"fullName": "nx-core-1/Ethernet1-5", "fullAddress": "10.1.1.1/CH1/M1/P5"},
        "customActionAttributes": [],
        "actionId": "a1",
        "type": "setVlan"
      },
      {
        "connectionParams": {"vlanId": "30", "mode": "Access",
          "vlanServiceAttributes": [{"attributeName": "QnQ", "attributeValue": "True"}]},
        "actionTarget": {"fullName": "nx-core-1/port-channel7"},
        "actionId": "a2",
        "type": "removeVlan"
      }
    ]
  }
}`

func TestParseConnectivityRequest(t *testing.T) {
	req, err := ParseConnectivityRequest(connectivityRequest)
	if err != nil {
		t.Fatalf("ParseConnectivityRequest: %v", err)
	}
	actions := req.DriverRequest.Actions
	if len(actions) != 2 {
		t.Fatalf("actions = %d", len(actions))
	}

	a := actions[0]
	if a.Mode() != ModeTrunk || a.ConnectionParams.VLANID != "10-12,20" {
		t.Errorf("action a1 = %s %s", a.Mode(), a.ConnectionParams.VLANID)
	}
	if a.IsQnQ() {
		t.Error("a1 should not be QnQ")
	}
	if a.Interface() != "Ethernet1/5" {
		t.Errorf("a1 interface = %q", a.Interface())
	}

	b := actions[1]
	if !b.IsQnQ() || b.Mode() != ModeAccess || b.Interface() != "port-channel7" {
		t.Errorf("action a2 = qnq:%v mode:%s intf:%s", b.IsQnQ(), b.Mode(), b.Interface())
	}
}

func TestParseConnectivityRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  "},
		{"malformed", "{"},
		{"no action id", `{"driverRequest":{"actions":[{"type":"setVlan"}]}}`},
		{"bad type", `{"driverRequest":{"actions":[{"actionId":"x","type":"flip"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConnectivityRequest(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConnectivityResponse(t *testing.T) {
	req, _ := ParseConnectivityRequest(connectivityRequest)
	var resp ConnectivityResponse
	resp.DriverResponse.ActionResults = append(resp.DriverResponse.ActionResults,
		NewActionResult(&req.DriverRequest.Actions[0], nil, "VLAN 10-12,20 configured successfully"),
		NewActionResult(&req.DriverRequest.Actions[1], errors.New("interface not found"), ""),
	)
	out, err := resp.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	results := gjson.Get(out, "driverResponse.actionResults")
	if len(results.Array()) != 2 {
		t.Fatalf("results = %s", results.Raw)
	}
	first := results.Array()[0]
	if !first.Get("success").Bool() || first.Get("updatedInterface").String() != "nx-core-1/Ethernet1-5" {
		t.Errorf("first result = %s", first.Raw)
	}
	second := results.Array()[1]
	if second.Get("success").Bool() || second.Get("errorMessage").String() != "interface not found" {
		t.Errorf("second result = %s", second.Raw)
	}

	var empty ConnectivityResponse
	out, _ = empty.JSON()
	if !gjson.Get(out, "driverResponse.actionResults").IsArray() {
		t.Errorf("empty response should carry an empty array: %s", out)
	}
}

// ===================== Saved Artifact Tests =====================

func TestSavedArtifactInfo_RoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 18, 10, 15, 0, 0, time.UTC)
	info := &SavedArtifactInfo{
		ResourceName:         "nx-core-1",
		CreatedDate:          created,
		RequiresSameResource: true,
		Artifact:             SavedArtifact{ArtifactType: "tftp", Identifier: "//10.0.0.9/backups/nx-core-1-running-180226-101500"},
	}
	doc, err := info.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if gjson.Get(doc, "saved_artifacts_info.restore_rules.requires_same_resource").Bool() != true {
		t.Errorf("doc = %s", doc)
	}

	parsed, err := ParseSavedArtifactInfo(doc, "nx-core-1")
	if err != nil {
		t.Fatalf("ParseSavedArtifactInfo: %v", err)
	}
	if parsed.Artifact.URL() != "tftp://10.0.0.9/backups/nx-core-1-running-180226-101500" {
		t.Errorf("URL = %q", parsed.Artifact.URL())
	}
	if !parsed.CreatedDate.Equal(created) {
		t.Errorf("CreatedDate = %v", parsed.CreatedDate)
	}

	_, err = ParseSavedArtifactInfo(doc, "nx-core-2")
	var mismatch *ResourceMismatchError
	if !errors.As(err, &mismatch) || !errors.Is(err, util.ErrResourceMismatch) {
		t.Errorf("restore on another resource = %v, want ResourceMismatchError", err)
	}

	info.RequiresSameResource = false
	doc, _ = info.JSON()
	if _, err := ParseSavedArtifactInfo(doc, "nx-core-2"); err != nil {
		t.Errorf("artifact without same-resource rule should restore anywhere: %v", err)
	}
}

func TestParseSavedArtifactInfo_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid", "{"},
		{"no root", `{"x":1}`},
		{"no artifact", `{"saved_artifacts_info":{"resource_name":"nx1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSavedArtifactInfo(tt.data, "nx1"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestArtifactFromURL(t *testing.T) {
	tests := []struct {
		url      string
		typ, id  string
		roundURL string
	}{
		{"tftp://10.0.0.9/f", "tftp", "//10.0.0.9/f", "tftp://10.0.0.9/f"},
		{"SCP://user@h/f", "scp", "//user@h/f", "scp://user@h/f"},
		{"bootflash:nx1-running", "bootflash", "nx1-running", "bootflash:nx1-running"},
		{"nx1-running", "bootflash", "nx1-running", "bootflash:nx1-running"},
	}
	for _, tt := range tests {
		a := ArtifactFromURL(tt.url)
		if a.ArtifactType != tt.typ || a.Identifier != tt.id {
			t.Errorf("ArtifactFromURL(%q) = %+v", tt.url, a)
		}
		if a.URL() != tt.roundURL {
			t.Errorf("URL() = %q, want %q", a.URL(), tt.roundURL)
		}
	}
}

func TestParseCustomParams(t *testing.T) {
	p, err := ParseCustomParams(`{"custom_params":{"folder_path":"tftp://h/x","configuration_type":"startup","vrf_management_name":"management"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if p.FolderPath != "tftp://h/x" || p.ConfigurationType != "startup" || p.VRFManagementName != "management" {
		t.Errorf("params = %+v", p)
	}

	p, err = ParseCustomParams(`{"restore_method":"append"}`)
	if err != nil || p.RestoreMethod != "append" {
		t.Errorf("bare params = %+v, %v", p, err)
	}

	if p, err := ParseCustomParams(""); err != nil || *p != (CustomParams{}) {
		t.Errorf("empty params = %+v, %v", p, err)
	}
	if _, err := ParseCustomParams("{"); err == nil {
		t.Error("invalid JSON should fail")
	}
}
