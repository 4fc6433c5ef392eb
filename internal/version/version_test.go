package appversion_test

import (
	"strings"
	"testing"

	appversion "github.com/dantte-lp/vpnqa/internal/version"
)

func TestFull(t *testing.T) {
	t.Parallel()

	got := appversion.Full("vpnqa")

	for _, want := range []string{"vpnqa " + appversion.Version, "commit:", "built:"} {
		if !strings.Contains(got, want) {
			t.Errorf("Full() = %q, missing %q", got, want)
		}
	}
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	info := appversion.Current()
	if info.Version != appversion.Version || info.GitCommit != appversion.GitCommit {
		t.Errorf("Current() = %+v, want package variables", info)
	}
}
