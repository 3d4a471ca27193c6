// Package version reports the ascart build identity.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/ascart"

// buildVersion is set via -ldflags "-X pkt.systems/ascart/internal/version.buildVersion=...".
var buildVersion = ""

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Module    string `json:"module"`
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version"`
}

// String renders "module version", the form printed by the version command.
func (i Info) String() string {
	return fmt.Sprintf("%s %s", i.Module, i.Version)
}

// Read collects build identity from ldflags and the embedded build info.
func Read() Info {
	info := Info{Module: defaultModule, Version: "v0.0.0-unknown", GoVersion: runtime.Version()}
	bi, ok := readBuildInfo()
	if ok && bi != nil {
		if path := strings.TrimSpace(bi.Main.Path); path != "" {
			info.Module = path
		}
		vcs := readVCS(bi)
		info.Revision = vcs.revision
		info.Dirty = vcs.modified
		if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
			info.Version = strings.TrimSuffix(v, "+dirty")
		} else if v := vcs.pseudo(); v != "" {
			info.Version = v
		}
	}
	if v := strings.TrimSpace(buildVersion); v != "" {
		info.Version = strings.TrimSuffix(v, "+dirty")
	}
	return info
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

type vcsStamp struct {
	revision string
	when     time.Time
	modified bool
}

func readVCS(bi *debug.BuildInfo) vcsStamp {
	var stamp vcsStamp
	if bi == nil {
		return stamp
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			stamp.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				stamp.when = parsed
			}
		case "vcs.modified":
			stamp.modified = setting.Value == "true"
		}
	}
	return stamp
}

// pseudo renders a Go pseudo-version from the VCS stamp.
func (s vcsStamp) pseudo() string {
	if s.revision == "" || s.when.IsZero() {
		return ""
	}
	rev := s.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + s.when.UTC().Format("20060102150405") + "-" + rev
}
