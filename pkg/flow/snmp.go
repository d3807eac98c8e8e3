package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/resource"
)

// SNMPFlow turns the SNMP agent settings autoload needs on and off.
type SNMPFlow struct {
	cli device.Handler
	cfg *resource.Config
	log *logrus.Entry
}

// NewSNMPFlow creates the flow.
func NewSNMPFlow(cli device.Handler, cfg *resource.Config, log *logrus.Entry) *SNMPFlow {
	return &SNMPFlow{cli: cli, cfg: cfg, log: entry(log)}
}

// Enable configures the read community (v1/v2c) or the v3 user when
// "Enable SNMP" is set and the switch does not already have it.
func (f *SNMPFlow) Enable(ctx context.Context) error {
	if !f.cfg.EnableSNMP {
		return nil
	}
	var cmd, present string
	if f.cfg.SNMPVersion == resource.SNMPv3 {
		var err error
		if cmd, err = snmpV3UserCommand(f.cfg); err != nil {
			return err
		}
		present = "snmp-server user " + f.cfg.SNMPV3User + " "
	} else {
		if f.cfg.SNMPReadCommunity == "" {
			return fmt.Errorf("SNMP Read Community is empty, cannot enable SNMP")
		}
		cmd = "snmp-server community " + f.cfg.SNMPReadCommunity + " ro"
		present = "snmp-server community " + f.cfg.SNMPReadCommunity + " "
	}

	return f.cli.Config(ctx, func(s device.Sender) error {
		out, err := s.Send(ctx, "show running-config snmp | include snmp-server")
		if err != nil {
			return err
		}
		if hasLinePrefix(out, present) {
			f.log.Debug("SNMP already configured")
			return nil
		}
		f.log.Info("Enabling SNMP")
		_, err = s.Send(ctx, cmd)
		return err
	})
}

// Disable removes the resource's read community or v3 user when
// "Disable SNMP" is set, even if it was configured before Enable ran.
func (f *SNMPFlow) Disable(ctx context.Context) error {
	if !f.cfg.DisableSNMP {
		return nil
	}
	var cmd string
	if f.cfg.SNMPVersion == resource.SNMPv3 {
		if f.cfg.SNMPV3User == "" {
			return nil
		}
		cmd = "no snmp-server user " + f.cfg.SNMPV3User
	} else {
		if f.cfg.SNMPReadCommunity == "" {
			return nil
		}
		cmd = "no snmp-server community " + f.cfg.SNMPReadCommunity
	}
	f.log.Info("Disabling SNMP")
	return f.cli.Config(ctx, func(s device.Sender) error {
		_, err := s.Send(ctx, cmd)
		return err
	})
}

var snmpAuth = map[string]string{
	"MD5": "md5", "SHA": "sha", "SHA1": "sha",
	"SHA256": "sha-256",
	"SHA384": "sha-384", "SHA512": "sha-512",
}

var snmpPriv = map[string]string{
	"DES": "", "AES": "aes-128", "AES128": "aes-128",
}

var protoClean = regexp.MustCompile(`[^A-Z0-9]`)

func snmpV3UserCommand(cfg *resource.Config) (string, error) {
	if cfg.SNMPV3User == "" {
		return "", fmt.Errorf("SNMP V3 User is empty, cannot enable SNMP")
	}
	cmd := "snmp-server user " + cfg.SNMPV3User + " network-operator"

	authName := protoClean.ReplaceAllString(strings.ToUpper(cfg.SNMPV3AuthProtocol), "")
	if authName == "" || strings.HasPrefix(authName, "NO") {
		return cmd, nil
	}
	auth, ok := snmpAuth[authName]
	if !ok {
		return "", fmt.Errorf("SNMP v3 authentication protocol %q is not supported by NX-OS", cfg.SNMPV3AuthProtocol)
	}
	cmd += " auth " + auth + " " + cfg.SNMPV3Password

	privName := protoClean.ReplaceAllString(strings.ToUpper(cfg.SNMPV3PrivProtocol), "")
	if privName == "" || strings.HasPrefix(privName, "NO") {
		return cmd, nil
	}
	priv, ok := snmpPriv[privName]
	if !ok {
		return "", fmt.Errorf("SNMP v3 privacy protocol %q is not supported by NX-OS", cfg.SNMPV3PrivProtocol)
	}
	cmd += " priv"
	if priv != "" {
		cmd += " " + priv
	}
	return cmd + " " + cfg.SNMPV3PrivateKey, nil
}

func hasLinePrefix(out, prefix string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line)+" ", prefix) {
			return true
		}
	}
	return false
}
