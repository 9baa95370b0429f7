package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	if !strings.HasPrefix(got, Version+" (commit ") {
		t.Errorf("want version first, got %q", got)
	}
	if !strings.Contains(got, runtime.Version()) {
		t.Errorf("want go version in %q", got)
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	oldC, oldD := Commit, BuildDate
	t.Cleanup(func() { Commit, BuildDate = oldC, oldD })
	Commit, BuildDate = "abc1234", "2026-01-02"

	i := Get()
	if i.Commit != "abc1234" || i.BuildDate != "2026-01-02" {
		t.Errorf("want ldflags values kept, got %+v", i)
	}
}
