package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

const testWorkspace = `
projects:
  - name: app
    folder: app
    dependencies: [lib]
  - name: lib
    folder: lib
phases:
  - name: build
    upstream: [build]
    tasks:
      - name: build
  - name: test
    self: [build]
    tasks:
      - name: test
        command: %s
`

// setupWorkspace writes a workspace file into a temp dir and isolates the
// user config directory.
func setupWorkspace(t *testing.T, testCommand string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	for _, dir := range []string{"app", "lib"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(root, "phasebuild.yaml")
	content := strings.Replace(testWorkspace, "%s", testCommand, 1)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "phasebuild" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "phasebuild")
	}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"run", "list", "config"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	for _, name := range []string{"to", "only", "parallelism", "watch", "timeline", "clean", "no-incremental", "verbose", "param"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run command is missing --%s", name)
		}
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"single", []string{"env=prod"}, map[string]string{"env": "prod"}, false},
		{"value with equals", []string{"flags=a=b"}, map[string]string{"flags": "a=b"}, false},
		{"empty value", []string{"debug="}, map[string]string{"debug": ""}, false},
		{"later wins", []string{"env=dev", "env=prod"}, map[string]string{"env": "prod"}, false},
		{"missing equals", []string{"env"}, nil, true},
		{"missing key", []string{"=prod"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseParams() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("param %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestListCommand(t *testing.T) {
	path := setupWorkspace(t, `"true"`)

	output, err := executeCommand(rootCmd, "list", "test", "--workspace", path, "--only", "app")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, output)
	}

	want := "app (build)\napp (test)\n    after: app (build)\n"
	if !strings.Contains(output, want) {
		t.Errorf("list output = %q, want it to contain %q", output, want)
	}
	if !strings.Contains(output, "2 operations, 1 projects, 2 phases") {
		t.Errorf("list output is missing the totals: %q", output)
	}
}

func TestRunCommand(t *testing.T) {
	path := setupWorkspace(t, `"true"`)

	output, err := executeCommand(rootCmd, "run", "test", "--workspace", path, "-p", "2")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	for _, want := range []string{"==[ lib (test) ]== SUCCESS", "==[ SUMMARY ]==", "Cycle 1 finished with"} {
		if !strings.Contains(output, want) {
			t.Errorf("run output is missing %q:\n%s", want, output)
		}
	}

	root := filepath.Dir(path)
	if _, err := os.Stat(filepath.Join(root, ".phasebuild", "logs", "debug.log")); err != nil {
		t.Errorf("debug log was not written: %v", err)
	}
}

func TestRunCommand_FailureIsAnError(t *testing.T) {
	path := setupWorkspace(t, `"exit 3"`)

	output, err := executeCommand(rootCmd, "run", "test", "--workspace", path, "--only", "lib")
	if err == nil {
		t.Fatalf("run succeeded, want an error\n%s", output)
	}
	if !strings.Contains(err.Error(), "FAILURE") {
		t.Errorf("error = %v, want it to name the FAILURE status", err)
	}
	if !strings.Contains(output, "==[ lib (test) ]== FAILURE") {
		t.Errorf("run output is missing the failed operation:\n%s", output)
	}
}

func TestConfigShow(t *testing.T) {
	path := setupWorkspace(t, `"true"`)
	t.Setenv("PHASEBUILD_LOGGING_LEVEL", "debug")

	output, err := executeCommand(rootCmd, "config", "--workspace", path)
	if err != nil {
		t.Fatalf("config failed: %v\n%s", err, output)
	}
	for _, want := range []string{"execution:", "level: debug", "debounce_ms: 200"} {
		if !strings.Contains(output, want) {
			t.Errorf("config output is missing %q:\n%s", want, output)
		}
	}
}
