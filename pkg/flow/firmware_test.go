package flow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nxshell/nxshell/internal/testutil"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

var fastReload = FirmwareOptions{ReloadTimeout: 2 * time.Second, PollInterval: time.Millisecond}

// rebootingSwitch answers "show version | json" only after down attempts.
func rebootingSwitch(down int, booted string) *testutil.FakeCLI {
	var mu sync.Mutex
	attempts := 0
	return testutil.NewFakeCLI().
		Handle("copy .*", func(*testutil.Session, string) (string, error) {
			return "Copy complete, now saving to disk (please wait)...", nil
		}).
		Fail("reload", util.ErrSessionClosed).
		Handle(`show version \| json`, func(*testutil.Session, string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts <= down {
				return "", util.ErrSessionClosed
			}
			return `{"bios_ver_str":"07.69","nxos_ver_str":"9.3(9)","nxos_file_name":"` + booted + `","chassis_id":"Nexus9000 C93180YC-EX chassis"}`, nil
		})
}

func TestFirmwareFlow_LoadFirmware(t *testing.T) {
	cli := rebootingSwitch(3, "bootflash:///nxos.9.3.9.bin")
	f := NewFirmwareFlow(cli, &resource.Config{Name: "nx1"}, nil, fastReload)

	if err := f.LoadFirmware(testutil.Context(t), "tftp://10.0.0.9/img/nxos.9.3.9.bin", "management"); err != nil {
		t.Fatalf("LoadFirmware() error = %v", err)
	}

	order := []string{
		"copy tftp://10.0.0.9/img/nxos.9.3.9.bin bootflash:nxos.9.3.9.bin vrf management",
		"boot nxos bootflash:nxos.9.3.9.bin",
		"copy running-config startup-config",
		"reload",
		"show version | json",
	}
	last := -1
	for _, cmd := range order {
		i := cli.Index(cmd)
		if i <= last {
			t.Fatalf("%q sent out of order: %v", cmd, cli.Commands())
		}
		last = i
	}
}

func TestFirmwareFlow_LocalImage(t *testing.T) {
	cli := rebootingSwitch(0, "bootflash:///nxos.9.3.9.bin")
	f := NewFirmwareFlow(cli, &resource.Config{Name: "nx1"}, nil, fastReload)

	if err := f.LoadFirmware(testutil.Context(t), "bootflash:nxos.9.3.9.bin", ""); err != nil {
		t.Fatalf("LoadFirmware() error = %v", err)
	}
	if cli.Index("copy running-config startup-config") != 1 {
		t.Errorf("bootflash image should not be copied: %v", cli.Commands())
	}
}

func TestFirmwareFlow_Errors(t *testing.T) {
	t.Run("wrong image after reload", func(t *testing.T) {
		cli := rebootingSwitch(1, "bootflash:///nxos.9.3.8.bin")
		f := NewFirmwareFlow(cli, &resource.Config{Name: "nx1"}, nil, fastReload)
		err := f.LoadFirmware(testutil.Context(t), "tftp://10.0.0.9/nxos.9.3.9.bin", "")
		if !errors.Is(err, util.ErrVerificationFailed) {
			t.Fatalf("LoadFirmware() error = %v, want ErrVerificationFailed", err)
		}
	})

	t.Run("switch never returns", func(t *testing.T) {
		cli := rebootingSwitch(1<<30, "")
		opts := FirmwareOptions{ReloadTimeout: 50 * time.Millisecond, PollInterval: time.Millisecond}
		err := NewFirmwareFlow(cli, &resource.Config{Name: "nx1"}, nil, opts).
			LoadFirmware(testutil.Context(t), "bootflash:nxos.9.3.9.bin", "")
		if !errors.Is(err, util.ErrSessionClosed) {
			t.Fatalf("LoadFirmware() error = %v, want the last reconnect error", err)
		}
	})

	t.Run("copy fails", func(t *testing.T) {
		cli := testutil.NewFakeCLI().Reply("copy tftp://10.0.0.9/missing.bin bootflash:missing.bin",
			"%Error opening tftp://10.0.0.9/missing.bin (No such file or directory)")
		err := NewFirmwareFlow(cli, &resource.Config{}, nil, fastReload).
			LoadFirmware(testutil.Context(t), "tftp://10.0.0.9/missing.bin", "")
		if err == nil {
			t.Fatal("LoadFirmware() should fail")
		}
		if cli.Sent("reload") {
			t.Error("switch must not reload after a failed copy")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		err := NewFirmwareFlow(testutil.NewFakeCLI(), &resource.Config{}, nil, fastReload).
			LoadFirmware(testutil.Context(t), "", "")
		if !errors.Is(err, util.ErrValidationFailed) {
			t.Fatalf("LoadFirmware() error = %v, want ErrValidationFailed", err)
		}
	})
}

func TestImageName(t *testing.T) {
	tests := map[string]string{
		"tftp://10.0.0.9/img/nxos.9.3.9.bin": "nxos.9.3.9.bin",
		"bootflash:nxos.9.3.9.bin":           "nxos.9.3.9.bin",
		"bootflash:///nxos.9.3.9.bin":        "nxos.9.3.9.bin",
		"scp://u@h/images/":                  "images",
	}
	for in, want := range tests {
		if got := imageName(in); got != want {
			t.Errorf("imageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImageMatches(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{`{"nxos_file_name":"bootflash:///nxos.9.3.9.bin"}`, true},
		{`{"kick_file_name":"bootflash:///nxos.9.3.9.bin"}`, true},
		{`{"nxos_file_name":"bootflash:///nxos.9.3.8.bin"}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		if got := imageMatches(tt.version, "nxos.9.3.9.bin"); got != tt.want {
			t.Errorf("imageMatches(%s) = %v, want %v", tt.version, got, tt.want)
		}
	}
}
