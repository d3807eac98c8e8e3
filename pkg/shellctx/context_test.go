package shellctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const yamlContext = `
connectivity:
  server_address: 10.0.0.10
  admin_auth_token: tok
  cloudshell_api_port: "8029"
  cloudshell_api_scheme: http
resource:
  name: nx-core-1
  fullname: nx-core-1
  address: 192.168.10.5
  family: CS_Switch
  model: Cisco NXOS Switch 2G
  attributes:
    Cisco NXOS Switch 2G.User: admin
    Password: enc
reservation:
  reservation_id: 5b3c
  environment_name: lab
  domain: Global
  owner_user: alice
`

const jsonContext = `{
  "connectivity": {"server_address": "10.0.0.10"},
  "resource": {"name": "nx-core-1", "address": "192.168.10.5", "attributes": {"User": "admin"}},
  "reservation": {"reservation_id": "5b3c"}
}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"yaml", yamlContext},
		{"json", jsonContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := Decode(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ctx.Resource.Name != "nx-core-1" {
				t.Errorf("Resource.Name = %q", ctx.Resource.Name)
			}
			if ctx.Connectivity.ServerAddress != "10.0.0.10" {
				t.Errorf("ServerAddress = %q", ctx.Connectivity.ServerAddress)
			}
			if ReservationID(ctx) != "5b3c" {
				t.Errorf("ReservationID = %q", ReservationID(ctx))
			}
			if v, ok := ctx.Resource.Attribute("Cisco NXOS Switch 2G", "User"); !ok || v != "admin" {
				t.Errorf("User attribute = %q, %v", v, ok)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"malformed", "resource: [", "parsing"},
		{"no resource", "connectivity: {}\n", "resource"},
		{"no address", "resource: {name: nx1}\n", "resource.address"},
		{"no name", "resource: {address: 1.1.1.1}\n", "resource.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.yaml")
	if err := os.WriteFile(path, []byte(yamlContext), 0600); err != nil {
		t.Fatal(err)
	}
	ctx, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ctx.Reservation.Owner != "alice" {
		t.Errorf("Owner = %q", ctx.Reservation.Owner)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestAttribute(t *testing.T) {
	r := &Resource{Attributes: map[string]string{
		"Shell.User": "namespaced",
		"User":       "bare",
		"Password":   "pw",
	}}

	tests := []struct {
		shell, name string
		want        string
		found       bool
	}{
		{"Shell", "User", "namespaced", true},
		{"Other", "User", "bare", true},
		{"", "User", "bare", true},
		{"Shell", "Password", "pw", true},
		{"Shell", "Missing", "", false},
	}
	for _, tt := range tests {
		got, ok := r.Attribute(tt.shell, tt.name)
		if got != tt.want || ok != tt.found {
			t.Errorf("Attribute(%q, %q) = %q, %v; want %q, %v", tt.shell, tt.name, got, ok, tt.want, tt.found)
		}
	}

	var nilRes *Resource
	if _, ok := nilRes.Attribute("Shell", "User"); ok {
		t.Error("nil resource should have no attributes")
	}
}

func TestNarrowing(t *testing.T) {
	ctx, err := Decode(strings.NewReader(yamlContext))
	if err != nil {
		t.Fatal(err)
	}
	al := ctx.AutoLoad()
	if al.GetResource() != ctx.Resource || al.GetReservation() != nil {
		t.Error("AutoLoad() should keep the resource and drop the reservation")
	}
	if ReservationID(al) != "" {
		t.Errorf("ReservationID(autoload) = %q", ReservationID(al))
	}
	in := ctx.Init()
	if in.GetConnectivity() != ctx.Connectivity {
		t.Error("Init() should keep connectivity")
	}
}
