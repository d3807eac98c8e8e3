package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsSettingsOrHelp(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"settings", "show"}, true},
		{[]string{"version"}, true},
		{[]string{"save"}, false},
		{[]string{"audit", "list"}, false},
	}
	for _, tt := range tests {
		cmd, _, err := rootCmd.Find(tt.args)
		if err != nil {
			t.Fatalf("Find(%v) error = %v", tt.args, err)
		}
		if got := isSettingsOrHelp(cmd); got != tt.want {
			t.Errorf("isSettingsOrHelp(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestReadArg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.json")
	if err := os.WriteFile(path, []byte(`{"driverRequest":{}}`), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := readArg(path)
	if err != nil || got != `{"driverRequest":{}}` {
		t.Errorf("readArg(file) = %q, %v", got, err)
	}
	got, err = readArg(` {"inline":true}`)
	if err != nil || got != ` {"inline":true}` {
		t.Errorf("readArg(inline) = %q, %v", got, err)
	}
	if _, err := readArg(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("readArg(missing) should fail")
	}
}

func TestLoadContext_Required(t *testing.T) {
	contextPath = ""
	if _, err := loadContext(); err == nil {
		t.Error("loadContext() without -c should fail")
	}
}
