package main

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestMain_Help runs main in a subprocess, since cmd.Execute exits the
// process on error.
func TestMain_Help(t *testing.T) {
	if os.Getenv("DTMFCODEC_RUN_MAIN") == "1" {
		os.Args = []string{"dtmfcodec", "--help"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMain_Help")
	cmd.Env = append(os.Environ(), "DTMFCODEC_RUN_MAIN=1", "HOME="+t.TempDir(), "XDG_CONFIG_HOME=")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("main --help failed: %v\n%s", err, out)
	}
	for _, want := range []string{"dtmfcodec", "selftest", "generate"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}
