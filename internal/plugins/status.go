// ABOUTME: Aggregate status of the mods directories for the dashboard
// ABOUTME: Reports both listings plus world, Fabric API, and dashboard mod presence

package plugins

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	fabricAPIMarker    = "fabric-api"
	dashboardModMarker = "dashboard-mod"
)

// Status summarizes both artifact directories.
type Status struct {
	WorldExists           bool       `json:"world_exists"`
	Enabled               []Artifact `json:"mods"`
	Disabled              []Artifact `json:"disabled_mods"`
	EnabledCount          int        `json:"mods_count"`
	DisabledCount         int        `json:"disabled_count"`
	FabricAPIInstalled    bool       `json:"fabric_api_installed"`
	DashboardModInstalled bool       `json:"dashboard_mod_installed"`
}

// Status lists both directories and derives the installation flags.
// worldDir is checked for existence; pass "" to skip the check.
func (r *Registry) Status(worldDir string) (*Status, error) {
	enabled, err := r.ListEnabled()
	if err != nil {
		return nil, err
	}
	disabled, err := r.ListDisabled()
	if err != nil {
		return nil, err
	}

	st := &Status{
		Enabled:       enabled,
		Disabled:      disabled,
		EnabledCount:  len(enabled),
		DisabledCount: len(disabled),
	}
	if worldDir != "" {
		if info, err := os.Stat(worldDir); err == nil && info.IsDir() {
			st.WorldExists = true
		}
	}
	for _, a := range enabled {
		lower := strings.ToLower(a.Name)
		if strings.Contains(lower, fabricAPIMarker) {
			st.FabricAPIInstalled = true
		}
		if strings.Contains(lower, dashboardModMarker) {
			st.DashboardModInstalled = true
		}
	}
	return st, nil
}

// WorldDir returns the conventional world directory under a server root.
func WorldDir(minecraftDir string) string {
	if minecraftDir == "" {
		return ""
	}
	return filepath.Join(minecraftDir, "world")
}
