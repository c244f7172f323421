package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion must not be empty")
	}
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "v1.2.3", GitCommit: "abc1234", BuildTime: "2026-01-02", GoVersion: "go1.24"}.String()
	for _, want := range []string{"v1.2.3", "abc1234", "2026-01-02", "go1.24"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
