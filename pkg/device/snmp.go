package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nxshell/nxshell/pkg/resource"
)

// Variable is one SNMP varbind.
type Variable struct {
	OID   string // numeric, without the leading dot
	Type  gosnmp.Asn1BER
	Value interface{}
}

// String renders the value as text. Octet strings are returned as-is.
func (v Variable) String() string {
	switch val := v.Value.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return strings.TrimPrefix(val, ".")
	default:
		return fmt.Sprint(val)
	}
}

// Int returns a numeric value, or 0 for non-numeric types.
func (v Variable) Int() int64 {
	switch v.Value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return gosnmp.ToBigInt(v.Value).Int64()
	case []byte, string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n
	}
	return 0
}

// Bytes returns the raw octets of an octet string.
func (v Variable) Bytes() []byte {
	if b, ok := v.Value.([]byte); ok {
		return b
	}
	return nil
}

// Exists is false for noSuchObject, noSuchInstance and endOfMibView.
func (v Variable) Exists() bool {
	switch v.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return false
	}
	return true
}

// Index returns the OID suffix after root ("1.3.6.1.2.1.2.2.1.2.5" under
// "1.3.6.1.2.1.2.2.1.2" is "5").
func (v Variable) Index(root string) string {
	return strings.TrimPrefix(strings.TrimPrefix(v.OID, strings.TrimPrefix(root, ".")), ".")
}

// SNMP reads MIB objects from a switch.
type SNMP interface {
	Get(ctx context.Context, oids ...string) ([]Variable, error)
	Walk(ctx context.Context, root string) ([]Variable, error)
	Close() error
}

// SNMPOptions tune the SNMP client.
type SNMPOptions struct {
	Port    uint16
	Timeout time.Duration
	Retries int
}

type snmpClient struct {
	mu sync.Mutex
	g  *gosnmp.GoSNMP
}

// NewSNMP connects an SNMP client configured from the resource's SNMP
// attributes.
func NewSNMP(cfg *resource.Config, opts SNMPOptions) (SNMP, error) {
	g, err := snmpParams(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("SNMP connect %s: %w", cfg.Address, err)
	}
	return &snmpClient{g: g}, nil
}

func snmpParams(cfg *resource.Config, opts SNMPOptions) (*gosnmp.GoSNMP, error) {
	if opts.Port == 0 {
		opts.Port = 161
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	target := cfg.Address
	if host, _, err := net.SplitHostPort(target); err == nil {
		target = host
	}

	g := &gosnmp.GoSNMP{
		Target:             target,
		Port:               opts.Port,
		Timeout:            opts.Timeout,
		Retries:            opts.Retries,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     25,
		ExponentialTimeout: true,
	}

	switch cfg.SNMPVersion {
	case resource.SNMPv1:
		g.Version = gosnmp.Version1
		g.Community = cfg.SNMPReadCommunity
	case resource.SNMPv2c:
		g.Version = gosnmp.Version2c
		g.Community = cfg.SNMPReadCommunity
	case resource.SNMPv3:
		auth, err := authProtocol(cfg.SNMPV3AuthProtocol)
		if err != nil {
			return nil, err
		}
		priv, err := privProtocol(cfg.SNMPV3PrivProtocol)
		if err != nil {
			return nil, err
		}
		flags := gosnmp.NoAuthNoPriv
		if auth != gosnmp.NoAuth {
			flags = gosnmp.AuthNoPriv
			if priv != gosnmp.NoPriv {
				flags = gosnmp.AuthPriv
			}
		}
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = flags
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SNMPV3User,
			AuthenticationProtocol:   auth,
			AuthenticationPassphrase: cfg.SNMPV3Password,
			PrivacyProtocol:          priv,
			PrivacyPassphrase:        cfg.SNMPV3PrivateKey,
		}
	default:
		return nil, fmt.Errorf("unsupported SNMP version %q", cfg.SNMPVersion)
	}
	if g.Version != gosnmp.Version3 && g.Community == "" {
		return nil, fmt.Errorf("SNMP Read Community is not set")
	}
	return g, nil
}

func authProtocol(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "", "NO AUTHENTICATION PROTOCOL", "NOAUTH", "NONE":
		return gosnmp.NoAuth, nil
	case "MD5":
		return gosnmp.MD5, nil
	case "SHA", "SHA1":
		return gosnmp.SHA, nil
	case "SHA224":
		return gosnmp.SHA224, nil
	case "SHA256":
		return gosnmp.SHA256, nil
	case "SHA384":
		return gosnmp.SHA384, nil
	case "SHA512":
		return gosnmp.SHA512, nil
	}
	return gosnmp.NoAuth, fmt.Errorf("unsupported SNMP v3 authentication protocol %q", name)
}

func privProtocol(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "", "NO PRIVACY PROTOCOL", "NOPRIV", "NONE":
		return gosnmp.NoPriv, nil
	case "DES":
		return gosnmp.DES, nil
	case "AES", "AES128":
		return gosnmp.AES, nil
	case "AES192":
		return gosnmp.AES192, nil
	case "AES256":
		return gosnmp.AES256, nil
	}
	return gosnmp.NoPriv, fmt.Errorf("unsupported SNMP v3 privacy protocol %q", name)
}

func convertPDU(p gosnmp.SnmpPDU) Variable {
	return Variable{OID: strings.TrimPrefix(p.Name, "."), Type: p.Type, Value: p.Value}
}

func (c *snmpClient) Get(ctx context.Context, oids ...string) ([]Variable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Context = ctx

	pkt, err := c.g.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("SNMP get: %w", err)
	}
	vars := make([]Variable, 0, len(pkt.Variables))
	for _, p := range pkt.Variables {
		vars = append(vars, convertPDU(p))
	}
	return vars, nil
}

func (c *snmpClient) Walk(ctx context.Context, root string) ([]Variable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Context = ctx

	var pdus []gosnmp.SnmpPDU
	var err error
	if c.g.Version == gosnmp.Version1 {
		pdus, err = c.g.WalkAll(root)
	} else {
		pdus, err = c.g.BulkWalkAll(root)
	}
	if err != nil {
		return nil, fmt.Errorf("SNMP walk %s: %w", root, err)
	}
	vars := make([]Variable, 0, len(pdus))
	for _, p := range pdus {
		vars = append(vars, convertPDU(p))
	}
	return vars, nil
}

func (c *snmpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.g.Conn == nil {
		return nil
	}
	return c.g.Conn.Close()
}
