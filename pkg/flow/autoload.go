package flow

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/model"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// SNMPv2-MIB system group.
const (
	oidSysDescr    = "1.3.6.1.2.1.1.1.0"
	oidSysObjectID = "1.3.6.1.2.1.1.2.0"
	oidSysContact  = "1.3.6.1.2.1.1.4.0"
	oidSysName     = "1.3.6.1.2.1.1.5.0"
	oidSysLocation = "1.3.6.1.2.1.1.6.0"
)

// ENTITY-MIB entPhysicalTable columns and the alias mapping to ifIndex.
const (
	oidEntDescr       = "1.3.6.1.2.1.47.1.1.1.1.2"
	oidEntContainedIn = "1.3.6.1.2.1.47.1.1.1.1.4"
	oidEntClass       = "1.3.6.1.2.1.47.1.1.1.1.5"
	oidEntRelPos      = "1.3.6.1.2.1.47.1.1.1.1.6"
	oidEntName        = "1.3.6.1.2.1.47.1.1.1.1.7"
	oidEntHardwareRev = "1.3.6.1.2.1.47.1.1.1.1.8"
	oidEntSerialNum   = "1.3.6.1.2.1.47.1.1.1.1.11"
	oidEntModelName   = "1.3.6.1.2.1.47.1.1.1.1.13"
	oidEntAliasMap    = "1.3.6.1.2.1.47.1.3.2.1.2"
)

// IF-MIB, IP-MIB, EtherLike-MIB and IEEE8023-LAG-MIB columns.
const (
	oidIfIndexPrefix   = "1.3.6.1.2.1.2.2.1.1."
	oidIfDescr         = "1.3.6.1.2.1.2.2.1.2"
	oidIfType          = "1.3.6.1.2.1.2.2.1.3"
	oidIfMtu           = "1.3.6.1.2.1.2.2.1.4"
	oidIfPhysAddress   = "1.3.6.1.2.1.2.2.1.6"
	oidIfAdminStatus   = "1.3.6.1.2.1.2.2.1.7"
	oidIfOperStatus    = "1.3.6.1.2.1.2.2.1.8"
	oidIfHighSpeed     = "1.3.6.1.2.1.31.1.1.1.15"
	oidIfAlias         = "1.3.6.1.2.1.31.1.1.1.18"
	oidIPAdEntIfIndex  = "1.3.6.1.2.1.4.20.1.2"
	oidIPAddressIfIdx  = "1.3.6.1.2.1.4.34.1.3"
	oidDot3Duplex      = "1.3.6.1.2.1.10.7.2.1.19"
	oidLagAttachedAggr = "1.2.840.10006.300.43.1.2.1.1.13"
)

// entPhysicalClass values.
const (
	classPowerSupply = 6
	classChassis     = 3
	classPort        = 10
	classModule      = 9
)

var ifTypeNames = map[int64]string{
	6:   "ethernetCsmacd",
	24:  "softwareLoopback",
	53:  "propVirtual",
	117: "gigabitEthernet",
	135: "l2vlan",
	136: "l3ipvlan",
	161: "ieee8023adLag",
}

var ifStatusNames = map[int64]string{1: "up", 2: "down", 3: "testing"}

var nxosVersion = regexp.MustCompile(`(?i)version\s+([^\s,]+)`)

// AutoloadFlow discovers the switch inventory over SNMP.
type AutoloadFlow struct {
	snmp device.SNMP
	cfg  *resource.Config
	log  *logrus.Entry
}

// NewAutoloadFlow creates the flow.
func NewAutoloadFlow(snmp device.SNMP, cfg *resource.Config, log *logrus.Entry) *AutoloadFlow {
	return &AutoloadFlow{snmp: snmp, cfg: cfg, log: entry(log)}
}

type entity struct {
	index       int
	class       int64
	containedIn int
	relPos      int64
	name        string
	descr       string
	model       string
	serial      string
	hwRev       string
	address     string
}

// Discover reads the system group, rejects switches whose sysDescr does
// not match supportedOS and builds the resource tree. shellModel
// namespaces the attributes; it defaults to the driver's shell name.
func (f *AutoloadFlow) Discover(ctx context.Context, supportedOS, shellModel string) (*model.AutoLoadDetails, error) {
	if shellModel == "" {
		shellModel = resource.ShellName
	}
	osPattern, err := regexp.Compile("(?i)" + supportedOS)
	if err != nil {
		return nil, fmt.Errorf("supported OS pattern: %w", err)
	}

	sys, err := f.snmp.Get(ctx, oidSysDescr, oidSysObjectID, oidSysContact, oidSysName, oidSysLocation)
	if err != nil {
		return nil, err
	}
	system := make(map[string]string, len(sys))
	for _, v := range sys {
		if v.Exists() {
			system[v.OID] = v.String()
		}
	}
	descr := system[oidSysDescr]
	if !osPattern.MatchString(descr) {
		return nil, fmt.Errorf("%w: %q", util.ErrUnsupportedOS, firstLine(descr))
	}

	f.log.Info("Building Root")
	b := model.NewAutoLoadBuilder(shellModel, f.cfg.Name)
	b.SetRootAttribute("Vendor", "Cisco")
	b.SetRootAttribute("System Name", system[oidSysName])
	b.SetRootAttribute("Contact Name", system[oidSysContact])
	b.SetRootAttribute("Location", system[oidSysLocation])
	if m := nxosVersion.FindStringSubmatch(descr); m != nil {
		b.SetRootAttribute("OS Version", m[1])
	}

	entities, err := f.entities(ctx)
	if err != nil {
		return nil, err
	}
	chassisModel := f.buildEntities(b, entities)
	b.SetRootAttribute("Model", chassisModel)
	b.SetRootAttribute("Model Name", chassisModel)

	ifaces, err := f.interfaces(ctx)
	if err != nil {
		return nil, err
	}
	portEntity, err := f.portEntities(ctx, entities)
	if err != nil {
		return nil, err
	}
	f.buildPorts(ctx, b, ifaces, portEntity, entities)

	details := b.Build()
	f.log.Infof("Discovered %d resources", len(details.Resources))
	return details, nil
}

// walkColumn walks one table column and indexes it by the OID suffix.
func (f *AutoloadFlow) walkColumn(ctx context.Context, oid string) (map[string]device.Variable, error) {
	vars, err := f.snmp.Walk(ctx, oid)
	if err != nil {
		return nil, err
	}
	col := make(map[string]device.Variable, len(vars))
	for _, v := range vars {
		if v.Exists() {
			col[v.Index(oid)] = v
		}
	}
	return col, nil
}

func (f *AutoloadFlow) entities(ctx context.Context) (map[int]*entity, error) {
	class, err := f.walkColumn(ctx, oidEntClass)
	if err != nil {
		return nil, err
	}
	ents := make(map[int]*entity, len(class))
	for idx, v := range class {
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		ents[n] = &entity{index: n, class: v.Int(), relPos: -1}
	}
	if len(ents) == 0 {
		return ents, nil
	}

	columns := []struct {
		oid string
		set func(e *entity, v device.Variable)
	}{
		{oidEntContainedIn, func(e *entity, v device.Variable) { e.containedIn = int(v.Int()) }},
		{oidEntRelPos, func(e *entity, v device.Variable) { e.relPos = v.Int() }},
		{oidEntName, func(e *entity, v device.Variable) { e.name = v.String() }},
		{oidEntDescr, func(e *entity, v device.Variable) { e.descr = v.String() }},
		{oidEntModelName, func(e *entity, v device.Variable) { e.model = strings.TrimSpace(v.String()) }},
		{oidEntSerialNum, func(e *entity, v device.Variable) { e.serial = strings.TrimSpace(v.String()) }},
		{oidEntHardwareRev, func(e *entity, v device.Variable) { e.hwRev = strings.TrimSpace(v.String()) }},
	}
	for _, c := range columns {
		col, err := f.walkColumn(ctx, c.oid)
		if err != nil {
			return nil, err
		}
		for idx, v := range col {
			n, err := strconv.Atoi(idx)
			if err != nil {
				continue
			}
			if e, ok := ents[n]; ok {
				c.set(e, v)
			}
		}
	}
	return ents, nil
}

func sortedEntities(ents map[int]*entity, class int64) []*entity {
	var out []*entity
	for _, e := range ents {
		if e.class == class {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// ancestor walks containedIn links, skipping containers, until it finds
// an entity of one of the given classes.
func ancestor(ents map[int]*entity, e *entity, classes ...int64) *entity {
	seen := map[int]bool{}
	for cur := ents[e.containedIn]; cur != nil && !seen[cur.index]; cur = ents[cur.containedIn] {
		seen[cur.index] = true
		for _, c := range classes {
			if cur.class == c {
				return cur
			}
		}
	}
	return nil
}

func position(e *entity, ordinal int) int {
	if e.relPos > 0 {
		return int(e.relPos)
	}
	return ordinal
}

// buildEntities adds chassis, modules, sub-modules and power supplies and
// returns the first chassis' model name.
func (f *AutoloadFlow) buildEntities(b *model.AutoLoadBuilder, ents map[int]*entity) string {
	f.log.Info("Building Chassis")
	chassis := sortedEntities(ents, classChassis)
	chassisModel := ""
	for i, c := range chassis {
		c.address = fmt.Sprintf("CH%d", i+1)
		b.AddResource(model.ModelChassis, "Chassis "+strconv.Itoa(i+1), c.address, map[string]string{
			"Model":         c.model,
			"Serial Number": c.serial,
		})
		if chassisModel == "" {
			chassisModel = c.model
		}
	}
	if len(chassis) == 0 {
		b.AddResource(model.ModelChassis, "Chassis 1", "CH1", map[string]string{})
	}

	f.log.Info("Building Modules")
	modules := sortedEntities(ents, classModule)
	// top level modules first so sub-modules find their parent address
	for pass := 0; pass < 2; pass++ {
		for i, m := range modules {
			if m.address != "" {
				continue
			}
			parent := ancestor(ents, m, classModule, classChassis)
			attrs := map[string]string{
				"Model":         m.model,
				"Serial Number": m.serial,
				"Version":       m.hwRev,
			}
			switch {
			case parent == nil || parent.class == classChassis:
				if pass != 0 {
					continue
				}
				base := "CH1"
				if parent != nil && parent.address != "" {
					base = parent.address
				}
				n := position(m, i+1)
				m.address = fmt.Sprintf("%s/M%d", base, n)
				b.AddResource(model.ModelModule, "Module "+strconv.Itoa(n), m.address, attrs)
			case parent.address != "":
				n := position(m, i+1)
				m.address = fmt.Sprintf("%s/SM%d", parent.address, n)
				b.AddResource(model.ModelSubModule, "Sub Module "+strconv.Itoa(n), m.address, attrs)
			}
		}
	}

	f.log.Info("Building Power Ports")
	for i, p := range sortedEntities(ents, classPowerSupply) {
		base := "CH1"
		if c := ancestor(ents, p, classChassis); c != nil && c.address != "" {
			base = c.address
		}
		n := position(p, i+1)
		p.address = fmt.Sprintf("%s/PP%d", base, n)
		b.AddResource(model.ModelPowerPort, "Power Port "+strconv.Itoa(n), p.address, map[string]string{
			"Model":            p.model,
			"Serial Number":    p.serial,
			"Version":          p.hwRev,
			"Port Description": p.descr,
		})
	}
	return chassisModel
}

// interfaces reads IF-MIB and the address tables into Interface values
// keyed by ifIndex.
func (f *AutoloadFlow) interfaces(ctx context.Context) (map[int]*model.Interface, error) {
	descr, err := f.walkColumn(ctx, oidIfDescr)
	if err != nil {
		return nil, err
	}
	ifaces := make(map[int]*model.Interface, len(descr))
	for idx, v := range descr {
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		ifaces[n] = &model.Interface{Index: n, Name: v.String()}
	}

	columns := []struct {
		oid string
		set func(i *model.Interface, v device.Variable)
	}{
		{oidIfType, func(i *model.Interface, v device.Variable) { i.Type = ifTypeNames[v.Int()] }},
		{oidIfMtu, func(i *model.Interface, v device.Variable) { i.MTU = int(v.Int()) }},
		{oidIfPhysAddress, func(i *model.Interface, v device.Variable) {
			if b := v.Bytes(); len(b) == 6 {
				i.MAC = net.HardwareAddr(b).String()
			}
		}},
		{oidIfAdminStatus, func(i *model.Interface, v device.Variable) { i.AdminStatus = ifStatusNames[v.Int()] }},
		{oidIfOperStatus, func(i *model.Interface, v device.Variable) { i.OperStatus = ifStatusNames[v.Int()] }},
		{oidIfHighSpeed, func(i *model.Interface, v device.Variable) { i.Speed = v.Int() * 1000000 }},
		{oidIfAlias, func(i *model.Interface, v device.Variable) { i.Description = v.String() }},
	}
	for _, c := range columns {
		col, err := f.walkColumn(ctx, c.oid)
		if err != nil {
			return nil, err
		}
		for idx, v := range col {
			if n, err := strconv.Atoi(idx); err == nil && ifaces[n] != nil {
				c.set(ifaces[n], v)
			}
		}
	}

	if err := f.addresses(ctx, ifaces); err != nil {
		return nil, err
	}

	// IEEE8023-LAG-MIB: member ifIndex -> aggregator ifIndex
	lag, err := f.walkColumn(ctx, oidLagAttachedAggr)
	if err != nil {
		f.log.Debugf("LAG membership unavailable: %v", err)
		lag = nil
	}
	for idx, v := range lag {
		member, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		agg := ifaces[int(v.Int())]
		if agg == nil || ifaces[member] == nil || int(v.Int()) == member {
			continue
		}
		ifaces[member].PortChannel = agg.Name
		agg.Members = append(agg.Members, ifaces[member].Name)
	}
	for _, i := range ifaces {
		sort.Strings(i.Members)
	}
	return ifaces, nil
}

func (f *AutoloadFlow) addresses(ctx context.Context, ifaces map[int]*model.Interface) error {
	v4, err := f.walkColumn(ctx, oidIPAdEntIfIndex)
	if err != nil {
		return err
	}
	for addr, v := range v4 {
		if i := ifaces[int(v.Int())]; i != nil {
			i.IPv4Addrs = append(i.IPv4Addrs, addr)
		}
	}

	v6, err := f.walkColumn(ctx, oidIPAddressIfIdx)
	if err != nil {
		f.log.Debugf("IPv6 addresses unavailable: %v", err)
		return nil
	}
	for idx, v := range v6 {
		ip := ipFromIndex(idx)
		if ip == nil || ip.To4() != nil {
			continue
		}
		if i := ifaces[int(v.Int())]; i != nil {
			i.IPv6Addrs = append(i.IPv6Addrs, ip.String())
		}
	}
	for _, i := range ifaces {
		sort.Strings(i.IPv4Addrs)
		sort.Strings(i.IPv6Addrs)
	}
	return nil
}

// ipFromIndex decodes an ipAddressTable index "<type>.<len>.<octets...>".
func ipFromIndex(idx string) net.IP {
	parts := strings.Split(idx, ".")
	if len(parts) < 2 {
		return nil
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || (n != 4 && n != 16) || len(parts) != n+2 {
		return nil
	}
	ip := make(net.IP, n)
	for i := 0; i < n; i++ {
		b, err := strconv.Atoi(parts[i+2])
		if err != nil || b < 0 || b > 255 {
			return nil
		}
		ip[i] = byte(b)
	}
	return ip
}

// portEntities maps ifIndex to the port entity aliased to it.
func (f *AutoloadFlow) portEntities(ctx context.Context, ents map[int]*entity) (map[int]*entity, error) {
	out := map[int]*entity{}
	if len(ents) == 0 {
		return out, nil
	}
	alias, err := f.walkColumn(ctx, oidEntAliasMap)
	if err != nil {
		return nil, err
	}
	for idx, v := range alias {
		// index is entPhysicalIndex.entAliasLogicalIndexOrZero
		entIdx, err := strconv.Atoi(strings.SplitN(idx, ".", 2)[0])
		if err != nil {
			continue
		}
		target := strings.TrimPrefix(v.String(), ".")
		if !strings.HasPrefix(target, oidIfIndexPrefix) {
			continue
		}
		ifIndex, err := strconv.Atoi(strings.TrimPrefix(target, oidIfIndexPrefix))
		if err != nil {
			continue
		}
		if e := ents[entIdx]; e != nil && e.class == classPort {
			out[ifIndex] = e
		}
	}
	return out, nil
}

// portSlot parses "Ethernet<slot>/<port>[/<sub>]".
func portSlot(name string) (slot int, port string, ok bool) {
	if !strings.HasPrefix(strings.ToLower(name), "ethernet") {
		return 0, "", false
	}
	parts := strings.Split(name[len("ethernet"):], "/")
	if len(parts) < 2 {
		return 0, "", false
	}
	slot, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	return slot, strings.Join(parts[1:], "-"), true
}

func (f *AutoloadFlow) buildPorts(ctx context.Context, b *model.AutoLoadBuilder, ifaces map[int]*model.Interface, portEnt map[int]*entity, ents map[int]*entity) {
	indexes := make([]int, 0, len(ifaces))
	for idx := range ifaces {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	duplexFor := func(idx int) string { return "" }
	if dx, err := f.walkColumn(ctx, oidDot3Duplex); err == nil {
		duplexFor = func(idx int) string {
			switch dx[strconv.Itoa(idx)].Int() {
			case 2:
				return "Half"
			case 3:
				return "Full"
			}
			return ""
		}
	}

	f.log.Info("Building Ports")
	for _, idx := range indexes {
		i := ifaces[idx]
		if !i.IsPhysical() {
			continue
		}
		slot, port, ok := portSlot(i.Name)
		if !ok {
			f.log.Debugf("skipping interface %s", i.Name)
			continue
		}

		moduleAddr := ""
		if e := portEnt[idx]; e != nil {
			if m := ancestor(ents, e, classModule); m != nil {
				moduleAddr = m.address
			}
		}
		if moduleAddr == "" {
			moduleAddr = fmt.Sprintf("CH1/M%d", slot)
			if !b.Has(moduleAddr) {
				b.AddResource(model.ModelModule, "Module "+strconv.Itoa(slot), moduleAddr, map[string]string{})
			}
		}

		b.AddResource(model.ModelPort, model.PortResourceName(i.Name), moduleAddr+"/P"+port, map[string]string{
			"Port Description": i.Description,
			"L2 Protocol Type": "ethernet",
			"MAC Address":      i.MAC,
			"MTU":              strconv.Itoa(i.MTU),
			"Bandwidth":        strconv.FormatInt(i.Speed/1000000, 10),
			"IPv4 Address":     strings.Join(i.IPv4Addrs, ","),
			"IPv6 Address":     strings.Join(i.IPv6Addrs, ","),
			"Duplex":           duplexFor(idx),
		})
	}

	f.log.Info("Building Port Channels")
	for _, idx := range indexes {
		i := ifaces[idx]
		if !i.IsPortChannel() {
			continue
		}
		n := strings.TrimSpace(i.Name[len("port-channel"):])
		if _, err := strconv.Atoi(n); err != nil {
			continue
		}
		b.AddResource(model.ModelPortChannel, i.Name, "PC"+n, map[string]string{
			"Port Description": i.Description,
			"Associated Ports": strings.Join(i.Members, ";"),
			"IPv4 Address":     strings.Join(i.IPv4Addrs, ","),
			"IPv6 Address":     strings.Join(i.IPv6Addrs, ","),
		})
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
