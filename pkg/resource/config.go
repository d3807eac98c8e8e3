// Package resource builds the typed configuration of one managed switch
// from the attributes the platform attaches to a command context.
package resource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nxshell/nxshell/pkg/api"
	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

// ShellName namespaces the resource attributes of this driver.
const ShellName = "Cisco NXOS Switch 2G"

// SupportedOS matches the sysDescr of switches this driver accepts.
const SupportedOS = "NX[ -]?OS|NXOS"

// Attribute names.
const (
	AttrUser               = "User"
	AttrPassword           = "Password"
	AttrEnablePassword     = "Enable Password"
	AttrSessionsLimit      = "Sessions Concurrency Limit"
	AttrSNMPReadCommunity  = "SNMP Read Community"
	AttrSNMPWriteCommunity = "SNMP Write Community"
	AttrSNMPV3User         = "SNMP V3 User"
	AttrSNMPV3Password     = "SNMP V3 Password"
	AttrSNMPV3PrivateKey   = "SNMP V3 Private Key"
	AttrSNMPV3AuthProtocol = "SNMP V3 Authentication Protocol"
	AttrSNMPV3PrivProtocol = "SNMP V3 Privacy Protocol"
	AttrSNMPVersion        = "SNMP Version"
	AttrEnableSNMP         = "Enable SNMP"
	AttrDisableSNMP        = "Disable SNMP"
	AttrConsoleServerIP    = "Console Server IP Address"
	AttrConsoleUser        = "Console User"
	AttrConsolePort        = "Console Port"
	AttrConsolePassword    = "Console Password"
	AttrCLIConnectionType  = "CLI Connection Type"
	AttrCLITCPPort         = "CLI TCP Port"
	AttrBackupLocation     = "Backup Location"
	AttrBackupType         = "Backup Type"
	AttrBackupUser         = "Backup User"
	AttrBackupPassword     = "Backup Password"
	AttrVRFManagementName  = "VRF Management Name"
)

// passwordAttrs are stored encrypted by the platform.
var passwordAttrs = map[string]bool{
	AttrPassword:           true,
	AttrEnablePassword:     true,
	AttrSNMPV3Password:     true,
	AttrSNMPV3PrivateKey:   true,
	AttrConsolePassword:    true,
	AttrBackupPassword:     true,
	AttrSNMPReadCommunity:  true,
	AttrSNMPWriteCommunity: true,
}

// CLI connection types.
const (
	ConnAuto   = "auto"
	ConnSSH    = "ssh"
	ConnTelnet = "telnet"
)

// SNMP versions.
const (
	SNMPv1  = "v1"
	SNMPv2c = "v2c"
	SNMPv3  = "v3"
)

// Backup types. FileSystem stores artifacts on the switch itself.
const (
	BackupFileSystem = "File System"
	BackupTFTP       = "tftp"
	BackupFTP        = "ftp"
	BackupSCP        = "scp"
	BackupSFTP       = "sftp"
)

// Config is the typed view of a resource's attributes.
type Config struct {
	Name    string
	Address string
	Family  string
	Model   string

	User                     string
	Password                 string
	EnablePassword           string
	SessionsConcurrencyLimit int

	SNMPReadCommunity  string
	SNMPWriteCommunity string
	SNMPV3User         string
	SNMPV3Password     string
	SNMPV3PrivateKey   string
	SNMPV3AuthProtocol string
	SNMPV3PrivProtocol string
	SNMPVersion        string
	EnableSNMP         bool
	DisableSNMP        bool

	ConsoleServerIP string
	ConsoleUser     string
	ConsolePort     int
	ConsolePassword string

	CLIConnectionType string
	CLITCPPort        int

	BackupLocation string
	BackupType     string
	BackupUser     string
	BackupPassword string

	VRFManagementName string
}

// Options controls how FromContext resolves attributes.
type Options struct {
	// Shell is the attribute namespace; defaults to ShellName.
	Shell string
	// API decrypts password attributes. Nil leaves them as given.
	API api.Client
}

// FromContext builds and validates the configuration of the resource the
// command targets.
func FromContext(ctx context.Context, cc shellctx.Context, opts Options) (*Config, error) {
	if err := shellctx.Validate(cc); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	shell := opts.Shell
	if shell == "" {
		shell = ShellName
	}
	r := cc.GetResource()

	var decryptErr error
	attr := func(name string) string {
		v, _ := r.Attribute(shell, name)
		if v == "" || opts.API == nil || !passwordAttrs[name] {
			return v
		}
		plain, err := opts.API.DecryptPassword(ctx, v)
		if err != nil && decryptErr == nil {
			decryptErr = fmt.Errorf("attribute %q: %w", name, err)
		}
		return plain
	}

	vb := &util.ValidationBuilder{}
	intAttr := func(name string, def int) int {
		v := strings.TrimSpace(attr(name))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			vb.AddErrorf("%s: %q is not a number", name, v)
			return def
		}
		return n
	}

	cfg := &Config{
		Name:    r.Name,
		Address: r.Address,
		Family:  r.Family,
		Model:   r.Model,

		User:                     attr(AttrUser),
		Password:                 attr(AttrPassword),
		EnablePassword:           attr(AttrEnablePassword),
		SessionsConcurrencyLimit: intAttr(AttrSessionsLimit, 1),

		SNMPReadCommunity:  attr(AttrSNMPReadCommunity),
		SNMPWriteCommunity: attr(AttrSNMPWriteCommunity),
		SNMPV3User:         attr(AttrSNMPV3User),
		SNMPV3Password:     attr(AttrSNMPV3Password),
		SNMPV3PrivateKey:   attr(AttrSNMPV3PrivateKey),
		SNMPV3AuthProtocol: attr(AttrSNMPV3AuthProtocol),
		SNMPV3PrivProtocol: attr(AttrSNMPV3PrivProtocol),
		SNMPVersion:        normalizeSNMPVersion(attr(AttrSNMPVersion)),
		EnableSNMP:         util.ParseBool(attr(AttrEnableSNMP), true),
		DisableSNMP:        util.ParseBool(attr(AttrDisableSNMP), false),

		ConsoleServerIP: attr(AttrConsoleServerIP),
		ConsoleUser:     attr(AttrConsoleUser),
		ConsolePort:     intAttr(AttrConsolePort, 0),
		ConsolePassword: attr(AttrConsolePassword),

		CLIConnectionType: strings.ToLower(strings.TrimSpace(attr(AttrCLIConnectionType))),
		CLITCPPort:        intAttr(AttrCLITCPPort, 0),

		BackupLocation: attr(AttrBackupLocation),
		BackupType:     normalizeBackupType(attr(AttrBackupType)),
		BackupUser:     attr(AttrBackupUser),
		BackupPassword: attr(AttrBackupPassword),

		VRFManagementName: attr(AttrVRFManagementName),
	}
	if decryptErr != nil {
		return nil, decryptErr
	}
	if cfg.CLIConnectionType == "" {
		cfg.CLIConnectionType = ConnAuto
	}

	cfg.validate(vb)
	if err := vb.Build(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(vb *util.ValidationBuilder) {
	vb.Add(c.SessionsConcurrencyLimit >= 1, "Sessions Concurrency Limit must be at least 1")
	switch c.CLIConnectionType {
	case ConnAuto, ConnSSH, ConnTelnet:
	default:
		vb.AddErrorf("CLI Connection Type %q is not one of Auto, SSH, Telnet", c.CLIConnectionType)
	}
	switch c.SNMPVersion {
	case SNMPv1, SNMPv2c, SNMPv3:
	default:
		vb.AddErrorf("SNMP Version %q is not one of v1, v2c, v3", c.SNMPVersion)
	}
	vb.Add(c.CLITCPPort >= 0 && c.CLITCPPort <= 65535, "CLI TCP Port out of range")
	if c.SNMPVersion == SNMPv3 {
		vb.Add(c.SNMPV3User != "", "SNMP V3 User is required for SNMP v3")
	}
}

// CLIPort returns the TCP port for the configured transport.
func (c *Config) CLIPort() int {
	if c.CLITCPPort > 0 {
		return c.CLITCPPort
	}
	if c.CLIConnectionType == ConnTelnet {
		return 23
	}
	return 22
}

// SessionKey identifies the connection parameters of a CLI session. A
// pooled session is reused only while the key is unchanged.
func (c *Config) SessionKey() string {
	return strings.Join([]string{
		c.CLIConnectionType, c.Address, strconv.Itoa(c.CLIPort()),
		c.User, c.Password, c.EnablePassword,
	}, "\x00")
}

// IsRemoteBackup reports whether saved configurations leave the switch.
func (c *Config) IsRemoteBackup() bool {
	return c.BackupType != BackupFileSystem
}

func normalizeSNMPVersion(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "2", "2c", "v2", "v2c":
		return SNMPv2c
	case "1", "v1":
		return SNMPv1
	case "3", "v3":
		return SNMPv3
	}
	return v
}

func normalizeBackupType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "file system", "filesystem", "bootflash":
		return BackupFileSystem
	case "tftp":
		return BackupTFTP
	case "ftp":
		return BackupFTP
	case "scp":
		return BackupSCP
	case "sftp":
		return BackupSFTP
	}
	return strings.ToLower(strings.TrimSpace(v))
}
