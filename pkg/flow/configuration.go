package flow

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nxshell/nxshell/pkg/device"
	"github.com/nxshell/nxshell/pkg/model"
	"github.com/nxshell/nxshell/pkg/resource"
	"github.com/nxshell/nxshell/pkg/util"
)

// Configuration types and restore methods.
const (
	ConfigRunning   = "running"
	ConfigStartup   = "startup"
	RestoreOverride = "override"
	RestoreAppend   = "append"
)

// Orchestration save modes.
const (
	OrchestrationShallow = "shallow"
	OrchestrationDeep    = "deep"
)

var (
	copyFailed    = regexp.MustCompile(`(?i)error|fail(ed|ure)?\b|no such file|permission denied|timed out|not found|invalid`)
	copySucceeded = regexp.MustCompile(`(?i)copy complete|successful|bytes? (copied|transferred)`)
	replaceOK     = regexp.MustCompile(`(?i)configure replace completed successfully`)
)

// ConfigurationFlow saves and restores switch configuration files.
type ConfigurationFlow struct {
	cli device.Handler
	cfg *resource.Config
	log *logrus.Entry
	now func() time.Time
}

// NewConfigurationFlow creates the flow.
func NewConfigurationFlow(cli device.Handler, cfg *resource.Config, log *logrus.Entry) *ConfigurationFlow {
	return &ConfigurationFlow{cli: cli, cfg: cfg, log: entry(log), now: time.Now}
}

// Save copies the running or startup configuration to folderPath and
// returns the saved file name, "<resource>-<type>-<ddmmyy-HHMMSS>". An
// empty folderPath uses the resource's backup type and location.
func (f *ConfigurationFlow) Save(ctx context.Context, folderPath, configurationType, vrf string) (string, error) {
	name, _, err := f.save(ctx, folderPath, configurationType, vrf)
	return name, err
}

func (f *ConfigurationFlow) save(ctx context.Context, folderPath, configurationType, vrf string) (name, url string, err error) {
	ctype, err := normalizeConfigType(configurationType)
	if err != nil {
		return "", "", err
	}
	if folderPath == "" {
		if folderPath, err = f.defaultFolder(); err != nil {
			return "", "", err
		}
	}
	name = fmt.Sprintf("%s-%s-%s", util.SanitizeName(f.cfg.Name), ctype, f.now().Format("020106-150405"))
	url = joinFolder(folderPath, name)

	f.log.Infof("Saving %s-config to %s", ctype, url)
	err = f.cli.Enable(ctx, func(s device.Sender) error {
		return f.copy(ctx, s, ctype+"-config", url, vrf)
	})
	if err != nil {
		return "", "", err
	}
	return name, url, nil
}

// Restore loads a saved configuration. Override of the running
// configuration stages remote files on bootflash and runs configure
// replace; append merges the file into the running configuration.
// Appending to the startup configuration is rejected.
func (f *ConfigurationFlow) Restore(ctx context.Context, filePath, configurationType, restoreMethod, vrf string) error {
	if strings.TrimSpace(filePath) == "" {
		return util.NewValidationError("restore path is empty")
	}
	ctype, err := normalizeConfigType(configurationType)
	if err != nil {
		return err
	}
	method := strings.ToLower(strings.TrimSpace(restoreMethod))
	if method == "" {
		method = RestoreOverride
	}
	if method != RestoreOverride && method != RestoreAppend {
		return util.NewValidationError(fmt.Sprintf("restore method %q is not one of override, append", restoreMethod))
	}
	if ctype == ConfigStartup && method == RestoreAppend {
		return fmt.Errorf("%w: append to startup-config", util.ErrNotSupported)
	}

	f.log.Infof("Restoring %s-config from %s (%s)", ctype, filePath, method)
	return f.cli.Enable(ctx, func(s device.Sender) error {
		switch {
		case ctype == ConfigStartup:
			return f.copy(ctx, s, filePath, "startup-config", vrf)
		case method == RestoreAppend:
			return f.copy(ctx, s, filePath, "running-config", vrf)
		}

		local := filePath
		staged := false
		if !isBootflash(filePath) {
			local = "bootflash:" + path.Base(strings.TrimRight(filePath, "/"))
			if err := f.copy(ctx, s, filePath, local, vrf); err != nil {
				return err
			}
			staged = true
		}
		out, err := s.Send(ctx, "configure replace "+local, device.Answer(`(?i)\(y/n\)\??\s*(\[[yn]\])?\s*$`, "y"))
		if staged {
			if _, derr := s.Send(ctx, "delete "+local+" no-prompt"); derr != nil {
				f.log.Warnf("removing staged file %s: %v", local, derr)
			}
		}
		if err != nil {
			return err
		}
		if !replaceOK.MatchString(out) && copyFailed.MatchString(out) {
			return fmt.Errorf("configure replace from %s failed: %s", local, firstLine(out))
		}
		return nil
	})
}

// OrchestrationSave saves the configuration for a sandbox snapshot and
// describes the artifact. Both modes save the full configuration.
func (f *ConfigurationFlow) OrchestrationSave(ctx context.Context, mode, customParams string) (*model.SavedArtifactInfo, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = OrchestrationShallow
	}
	if mode != OrchestrationShallow && mode != OrchestrationDeep {
		return nil, util.NewValidationError(fmt.Sprintf("orchestration save mode %q is not one of shallow, deep", mode))
	}
	params, err := model.ParseCustomParams(customParams)
	if err != nil {
		return nil, err
	}
	ctype := params.ConfigurationType
	if ctype == "" {
		ctype = ConfigRunning
	}
	vrf := params.VRFManagementName
	if vrf == "" {
		vrf = f.cfg.VRFManagementName
	}

	_, url, err := f.save(ctx, params.FolderPath, ctype, vrf)
	if err != nil {
		return nil, err
	}
	return &model.SavedArtifactInfo{
		ResourceName:         f.cfg.Name,
		CreatedDate:          f.now(),
		RequiresSameResource: true,
		Artifact:             model.ArtifactFromURL(url),
	}, nil
}

// copy runs "copy src dst", answering the prompts NX-OS raises for
// overwrites, VRF selection, passwords and host keys.
func (f *ConfigurationFlow) copy(ctx context.Context, s device.Sender, src, dst, vrf string) error {
	cmd := "copy " + f.withUser(src) + " " + f.withUser(dst)
	if vrf != "" && (isRemote(src) || isRemote(dst)) {
		cmd += " vrf " + vrf
	}
	actions := []device.Action{
		device.Answer(`(?i)enter vrf.*:\s*$`, vrfOrDefault(vrf)),
		device.Answer(`(?i)are you sure you want to continue connecting.*\?\s*$`, "yes"),
		device.Answer(`(?i)password:\s*$`, f.cfg.BackupPassword),
		device.Answer(`(?i)\(y/n\)\??\s*(\[[yn]\])?\s*$`, "y"),
	}
	out, err := s.Send(ctx, cmd, actions...)
	if err != nil {
		return err
	}
	if copyFailed.MatchString(out) && !copySucceeded.MatchString(out) {
		return fmt.Errorf("copy %s to %s failed: %s", src, dst, firstLine(out))
	}
	return nil
}

// withUser adds the backup user to ftp, scp and sftp URLs that carry none.
func (f *ConfigurationFlow) withUser(u string) string {
	if f.cfg.BackupUser == "" {
		return u
	}
	i := strings.Index(u, "://")
	if i < 0 {
		return u
	}
	scheme := strings.ToLower(u[:i])
	if scheme != resource.BackupFTP && scheme != resource.BackupSCP && scheme != resource.BackupSFTP {
		return u
	}
	rest := u[i+3:]
	host := rest
	if j := strings.Index(rest, "/"); j >= 0 {
		host = rest[:j]
	}
	if strings.Contains(host, "@") {
		return u
	}
	return u[:i+3] + f.cfg.BackupUser + "@" + rest
}

func (f *ConfigurationFlow) defaultFolder() (string, error) {
	loc := strings.TrimSpace(f.cfg.BackupLocation)
	if !f.cfg.IsRemoteBackup() {
		if loc == "" || isBootflash(loc) {
			if loc == "" {
				return "bootflash:", nil
			}
			return loc, nil
		}
		return "bootflash:" + strings.TrimPrefix(loc, "/"), nil
	}
	if loc == "" {
		return "", util.NewValidationError("Backup Location is empty and no folder path was given")
	}
	if strings.Contains(loc, "://") {
		return loc, nil
	}
	return f.cfg.BackupType + "://" + strings.TrimPrefix(loc, "/"), nil
}

func normalizeConfigType(t string) (string, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(t)), "-config") {
	case "", ConfigRunning:
		return ConfigRunning, nil
	case ConfigStartup:
		return ConfigStartup, nil
	}
	return "", util.NewValidationError(fmt.Sprintf("configuration type %q is not one of running, startup", t))
}

func joinFolder(folder, name string) string {
	if strings.HasSuffix(folder, ":") {
		return folder + name
	}
	return strings.TrimRight(folder, "/") + "/" + name
}

func isBootflash(p string) bool {
	return strings.HasPrefix(strings.ToLower(p), "bootflash:")
}

func isRemote(p string) bool {
	return strings.Contains(p, "://")
}

func vrfOrDefault(vrf string) string {
	if vrf == "" {
		return "management"
	}
	return vrf
}
