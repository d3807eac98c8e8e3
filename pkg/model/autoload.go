package model

import (
	"sort"
	"strings"
)

// Resource models produced by discovery.
const (
	ModelChassis     = "GenericChassis"
	ModelModule      = "GenericModule"
	ModelSubModule   = "GenericSubModule"
	ModelPort        = "GenericPort"
	ModelPowerPort   = "GenericPowerPort"
	ModelPortChannel = "GenericPortChannel"
)

// AutoLoadResource is one node of the discovered resource tree.
type AutoLoadResource struct {
	Model            string `json:"model"`
	Name             string `json:"name"`
	RelativeAddress  string `json:"relative_address"`
	UniqueIdentifier string `json:"unique_identifier"`
}

// AutoLoadAttribute is an attribute value of a discovered resource. An
// empty RelativeAddress targets the root switch resource.
type AutoLoadAttribute struct {
	RelativeAddress string `json:"relative_address"`
	AttributeName   string `json:"attribute_name"`
	AttributeValue  string `json:"attribute_value"`
}

// AutoLoadDetails is the result of inventory discovery.
type AutoLoadDetails struct {
	Resources  []AutoLoadResource  `json:"resources"`
	Attributes []AutoLoadAttribute `json:"attributes"`
}

// AutoLoadBuilder accumulates discovered resources. Attribute names are
// namespaced with the shell name for the root resource and with the
// model's family for sub-resources.
type AutoLoadBuilder struct {
	shell     string
	uniqueID  string
	resources map[string]AutoLoadResource
	attrs     []AutoLoadAttribute
}

// NewAutoLoadBuilder starts a tree for the root resource. uniqueID seeds
// the unique identifiers of every sub-resource.
func NewAutoLoadBuilder(shell, uniqueID string) *AutoLoadBuilder {
	return &AutoLoadBuilder{
		shell:     shell,
		uniqueID:  uniqueID,
		resources: make(map[string]AutoLoadResource),
	}
}

// SetRootAttribute records an attribute of the switch itself.
func (b *AutoLoadBuilder) SetRootAttribute(name, value string) {
	b.attrs = append(b.attrs, AutoLoadAttribute{
		AttributeName:  b.shell + "." + name,
		AttributeValue: value,
	})
}

// AddResource adds a sub-resource at address with the given attributes.
// Adding the same address twice keeps the first resource.
func (b *AutoLoadBuilder) AddResource(model, name, address string, attrs map[string]string) {
	if _, ok := b.resources[address]; ok {
		return
	}
	b.resources[address] = AutoLoadResource{
		Model:            model,
		Name:             name,
		RelativeAddress:  address,
		UniqueIdentifier: b.uniqueID + "." + strings.ReplaceAll(address, "/", "."),
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.attrs = append(b.attrs, AutoLoadAttribute{
			RelativeAddress: address,
			AttributeName:   b.shell + "." + model + "." + k,
			AttributeValue:  attrs[k],
		})
	}
}

// Has reports whether a resource exists at address.
func (b *AutoLoadBuilder) Has(address string) bool {
	_, ok := b.resources[address]
	return ok
}

// Build returns the details with resources ordered by address.
func (b *AutoLoadBuilder) Build() *AutoLoadDetails {
	d := &AutoLoadDetails{
		Resources:  make([]AutoLoadResource, 0, len(b.resources)),
		Attributes: append([]AutoLoadAttribute(nil), b.attrs...),
	}
	for _, r := range b.resources {
		d.Resources = append(d.Resources, r)
	}
	sort.Slice(d.Resources, func(i, j int) bool {
		return addressLess(d.Resources[i].RelativeAddress, d.Resources[j].RelativeAddress)
	})
	return d
}

// Find returns the resource at address.
func (d *AutoLoadDetails) Find(address string) (AutoLoadResource, bool) {
	for _, r := range d.Resources {
		if r.RelativeAddress == address {
			return r, true
		}
	}
	return AutoLoadResource{}, false
}

// Attribute returns the value of a namespaced attribute at address.
func (d *AutoLoadDetails) Attribute(address, name string) (string, bool) {
	for _, a := range d.Attributes {
		if a.RelativeAddress == address && (a.AttributeName == name || strings.HasSuffix(a.AttributeName, "."+name)) {
			return a.AttributeValue, true
		}
	}
	return "", false
}

// addressLess orders "CH1/M2/P10" after "CH1/M2/P9".
func addressLess(a, b string) bool {
	pa, pb := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		pfxA, nA := splitNum(pa[i])
		pfxB, nB := splitNum(pb[i])
		if pfxA != pfxB {
			return pfxA < pfxB
		}
		return nA < nB
	}
	return len(pa) < len(pb)
}

func splitNum(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	n := 0
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
	}
	return s[:i], n
}
