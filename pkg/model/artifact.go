package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nxshell/nxshell/pkg/util"
)

// SavedArtifact locates a saved configuration.
type SavedArtifact struct {
	ArtifactType string // tftp, ftp, scp, sftp or bootflash
	Identifier   string // path after the scheme, e.g. "//10.0.0.9/backups/nx1-running-180226-101500"
}

// URL returns the artifact as a copy source ("tftp://host/path").
func (a SavedArtifact) URL() string {
	if a.ArtifactType == "bootflash" {
		return "bootflash:" + strings.TrimPrefix(a.Identifier, "//")
	}
	return a.ArtifactType + ":" + a.Identifier
}

// ArtifactFromURL splits a saved file URL into type and identifier.
func ArtifactFromURL(u string) SavedArtifact {
	if i := strings.Index(u, ":"); i > 0 {
		return SavedArtifact{ArtifactType: strings.ToLower(u[:i]), Identifier: u[i+1:]}
	}
	return SavedArtifact{ArtifactType: "bootflash", Identifier: u}
}

// SavedArtifactInfo is the orchestration save result handed back to the
// platform and later passed to orchestration restore.
type SavedArtifactInfo struct {
	ResourceName         string
	CreatedDate          time.Time
	RequiresSameResource bool
	Artifact             SavedArtifact
}

// JSON renders the info in the platform's saved_artifacts_info layout.
func (i *SavedArtifactInfo) JSON() (string, error) {
	doc := `{"saved_artifacts_info":{}}`
	sets := []struct {
		path  string
		value interface{}
	}{
		{"saved_artifacts_info.resource_name", i.ResourceName},
		{"saved_artifacts_info.created_date", i.CreatedDate.UTC().Format("2006-01-02T15:04:05.000Z")},
		{"saved_artifacts_info.restore_rules.requires_same_resource", i.RequiresSameResource},
		{"saved_artifacts_info.saved_artifact.artifact_type", i.Artifact.ArtifactType},
		{"saved_artifacts_info.saved_artifact.identifier", i.Artifact.Identifier},
	}
	var err error
	for _, s := range sets {
		if doc, err = sjson.Set(doc, s.path, s.value); err != nil {
			return "", fmt.Errorf("building saved artifact info: %w", err)
		}
	}
	return doc, nil
}

// ParseSavedArtifactInfo reads the JSON produced by JSON. The resource
// name is checked against resourceName when the artifact requires the
// same resource.
func ParseSavedArtifactInfo(data, resourceName string) (*SavedArtifactInfo, error) {
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("saved artifact info is not valid JSON")
	}
	root := gjson.Get(data, "saved_artifacts_info")
	if !root.Exists() {
		return nil, fmt.Errorf("saved artifact info has no saved_artifacts_info")
	}

	info := &SavedArtifactInfo{
		ResourceName:         root.Get("resource_name").String(),
		RequiresSameResource: root.Get("restore_rules.requires_same_resource").Bool(),
		Artifact: SavedArtifact{
			ArtifactType: strings.ToLower(root.Get("saved_artifact.artifact_type").String()),
			Identifier:   root.Get("saved_artifact.identifier").String(),
		},
	}
	if ts := root.Get("created_date").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			info.CreatedDate = t
		}
	}
	if info.Artifact.ArtifactType == "" || info.Artifact.Identifier == "" {
		return nil, fmt.Errorf("saved artifact info has no saved_artifact type or identifier")
	}
	if info.RequiresSameResource && info.ResourceName != resourceName {
		return nil, &ResourceMismatchError{Saved: info.ResourceName, Current: resourceName}
	}
	return info, nil
}

// ResourceMismatchError is returned when an artifact saved on one resource
// is restored onto another.
type ResourceMismatchError struct {
	Saved   string
	Current string
}

func (e *ResourceMismatchError) Error() string {
	return fmt.Sprintf("saved artifact belongs to resource %q, not %q", e.Saved, e.Current)
}

func (e *ResourceMismatchError) Unwrap() error {
	return util.ErrResourceMismatch
}

// CustomParams are the optional JSON parameters of orchestration commands.
type CustomParams struct {
	FolderPath        string
	ConfigurationType string
	RestoreMethod     string
	VRFManagementName string
}

// ParseCustomParams reads {"custom_params": {...}}. The bare object form
// is also accepted. Empty input yields zero params.
func ParseCustomParams(data string) (*CustomParams, error) {
	p := &CustomParams{}
	if strings.TrimSpace(data) == "" {
		return p, nil
	}
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("custom params are not valid JSON")
	}
	root := gjson.Get(data, "custom_params")
	if !root.Exists() {
		root = gjson.Parse(data)
	}
	p.FolderPath = root.Get("folder_path").String()
	p.ConfigurationType = root.Get("configuration_type").String()
	p.RestoreMethod = root.Get("restore_method").String()
	p.VRFManagementName = root.Get("vrf_management_name").String()
	return p, nil
}
