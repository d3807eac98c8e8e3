package flow

import (
	"testing"

	"github.com/nxshell/nxshell/internal/testutil"
	"github.com/nxshell/nxshell/pkg/resource"
)

func TestSNMPFlow_Enable(t *testing.T) {
	tests := []struct {
		name    string
		cfg     resource.Config
		running string
		want    string
		wantErr bool
	}{
		{
			name: "v2c community added",
			cfg:  resource.Config{EnableSNMP: true, SNMPVersion: resource.SNMPv2c, SNMPReadCommunity: "public"},
			want: "snmp-server community public ro",
		},
		{
			name:    "v2c community present",
			cfg:     resource.Config{EnableSNMP: true, SNMPVersion: resource.SNMPv2c, SNMPReadCommunity: "public"},
			running: "snmp-server user admin network-admin auth md5 0x1 localizedkey\nsnmp-server community public group network-operator",
		},
		{
			name: "v3 user added",
			cfg: resource.Config{
				EnableSNMP: true, SNMPVersion: resource.SNMPv3, SNMPV3User: "ops",
				SNMPV3Password: "authpass", SNMPV3AuthProtocol: "SHA",
				SNMPV3PrivateKey: "privpass", SNMPV3PrivProtocol: "AES-128",
			},
			want: "snmp-server user ops network-operator auth sha authpass priv aes-128 privpass",
		},
		{
			name:    "v2c without community",
			cfg:     resource.Config{EnableSNMP: true, SNMPVersion: resource.SNMPv2c},
			wantErr: true,
		},
		{
			name: "disabled",
			cfg:  resource.Config{EnableSNMP: false, SNMPVersion: resource.SNMPv2c, SNMPReadCommunity: "public"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := testutil.NewFakeCLI().Reply("show running-config snmp | include snmp-server", tt.running)
			err := NewSNMPFlow(cli, &tt.cfg, nil).Enable(testutil.Context(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Enable() error = %v, wantErr %v", err, tt.wantErr)
			}
			cmds := cli.Commands()
			if tt.want == "" {
				for _, c := range cmds {
					if c != "show running-config snmp | include snmp-server" {
						t.Errorf("unexpected command %q", c)
					}
				}
				return
			}
			if !cli.Sent(tt.want) {
				t.Errorf("commands = %v, want %q", cmds, tt.want)
			}
		})
	}
}

func TestSNMPFlow_Disable(t *testing.T) {
	tests := []struct {
		name string
		cfg  resource.Config
		want string
	}{
		{
			name: "v2c",
			cfg:  resource.Config{DisableSNMP: true, SNMPVersion: resource.SNMPv2c, SNMPReadCommunity: "public"},
			want: "no snmp-server community public",
		},
		{
			name: "v3",
			cfg:  resource.Config{DisableSNMP: true, SNMPVersion: resource.SNMPv3, SNMPV3User: "ops"},
			want: "no snmp-server user ops",
		},
		{
			name: "not requested",
			cfg:  resource.Config{DisableSNMP: false, SNMPVersion: resource.SNMPv2c, SNMPReadCommunity: "public"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := testutil.NewFakeCLI()
			if err := NewSNMPFlow(cli, &tt.cfg, nil).Disable(testutil.Context(t)); err != nil {
				t.Fatalf("Disable() error = %v", err)
			}
			if tt.want == "" {
				if cli.Sessions() != 0 {
					t.Errorf("Disable() opened a session: %v", cli.Commands())
				}
				return
			}
			if !cli.Sent(tt.want) {
				t.Errorf("commands = %v, want %q", cli.Commands(), tt.want)
			}
		})
	}
}

func TestSNMPV3UserCommand(t *testing.T) {
	tests := []struct {
		auth, priv string
		want       string
		wantErr    bool
	}{
		{auth: "", priv: "", want: "snmp-server user ops network-operator"},
		{auth: "No Authentication Protocol", priv: "", want: "snmp-server user ops network-operator"},
		{auth: "MD5", priv: "No Privacy Protocol", want: "snmp-server user ops network-operator auth md5 a"},
		{auth: "SHA-256", priv: "DES", want: "snmp-server user ops network-operator auth sha-256 a priv p"},
		{auth: "SHA-224", wantErr: true},
		{auth: "SHA", priv: "AES-256", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.auth+"/"+tt.priv, func(t *testing.T) {
			cfg := &resource.Config{SNMPV3User: "ops", SNMPV3Password: "a", SNMPV3PrivateKey: "p",
				SNMPV3AuthProtocol: tt.auth, SNMPV3PrivProtocol: tt.priv}
			got, err := snmpV3UserCommand(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
		})
	}
}
