package util

import (
	"reflect"
	"testing"
)

func TestSplitCommands(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"show version", []string{"show version"}},
		{"show clock; show version", []string{"show clock", "show version"}},
		{"interface Ethernet1/1\n description uplink\n;;", []string{"interface Ethernet1/1", "description uplink"}},
	}

	for _, tt := range tests {
		if got := SplitCommands(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitCommands(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"leaf-01", "leaf-01"},
		{"leaf 01/a", "leaf-01-a"},
		{"core_sw.lab", "core_sw.lab"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		def  bool
		want bool
	}{
		{"True", false, true},
		{"true", false, true},
		{"Yes", false, true},
		{"False", true, false},
		{"", true, true},
		{"", false, false},
		{"garbage", true, false},
	}

	for _, tt := range tests {
		if got := ParseBool(tt.in, tt.def); got != tt.want {
			t.Errorf("ParseBool(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}
