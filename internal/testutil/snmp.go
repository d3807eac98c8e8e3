package testutil

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"

	"github.com/nxshell/nxshell/pkg/device"
)

// FakeSNMP is an in-memory MIB implementing device.SNMP.
type FakeSNMP struct {
	mu     sync.Mutex
	vars   map[string]device.Variable
	errs   map[string]error
	GetErr error
	closed bool
}

// NewFakeSNMP creates an empty MIB.
func NewFakeSNMP() *FakeSNMP {
	return &FakeSNMP{vars: map[string]device.Variable{}, errs: map[string]error{}}
}

// Set stores a value at oid.
func (f *FakeSNMP) Set(oid string, typ gosnmp.Asn1BER, value interface{}) *FakeSNMP {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid = strings.TrimPrefix(oid, ".")
	f.vars[oid] = device.Variable{OID: oid, Type: typ, Value: value}
	return f
}

// SetString stores an octet string.
func (f *FakeSNMP) SetString(oid, value string) *FakeSNMP {
	return f.Set(oid, gosnmp.OctetString, []byte(value))
}

// SetInt stores an integer.
func (f *FakeSNMP) SetInt(oid string, value int) *FakeSNMP {
	return f.Set(oid, gosnmp.Integer, value)
}

// FailWalk makes walks of root return err.
func (f *FakeSNMP) FailWalk(root string, err error) *FakeSNMP {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[strings.TrimPrefix(root, ".")] = err
	return f
}

// Closed reports whether Close was called.
func (f *FakeSNMP) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeSNMP) Get(ctx context.Context, oids ...string) ([]device.Variable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	out := make([]device.Variable, 0, len(oids))
	for _, oid := range oids {
		oid = strings.TrimPrefix(oid, ".")
		if v, ok := f.vars[oid]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, device.Variable{OID: oid, Type: gosnmp.NoSuchObject})
	}
	return out, nil
}

func (f *FakeSNMP) Walk(ctx context.Context, root string) ([]device.Variable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	root = strings.TrimPrefix(root, ".")
	if err := f.errs[root]; err != nil {
		return nil, err
	}
	var out []device.Variable
	for oid, v := range f.vars {
		if strings.HasPrefix(oid, root+".") {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return oidLess(out[i].OID, out[j].OID) })
	return out, nil
}

func (f *FakeSNMP) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func oidLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}
