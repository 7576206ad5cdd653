package execution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// fakeRunner records the invocation and returns a canned result.
type fakeRunner struct {
	result Result
	err    error

	gotName    string
	gotArgs    []string
	gotTimeout time.Duration
}

func (f *fakeRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
	f.gotName = name
	f.gotArgs = args
	f.gotTimeout = timeout
	return f.result, f.err
}

func TestRunCmdRejectsUnknownCommand(t *testing.T) {
	runner := &fakeRunner{}
	out, err := runCmdImpl(context.Background(), runner, "/repo", "dangerous-binary", "", 0, 0)
	if err != nil {
		t.Fatalf("runCmdImpl: %v", err)
	}
	if runner.gotName != "" {
		t.Fatal("disallowed command reached the runner")
	}

	var res cmdResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Status != "failed" || !strings.Contains(res.Stderr, "not in allowlist") {
		t.Fatalf("result = %+v, want allowlist failure", res)
	}
}

func TestRunCmdForwardsAllowedCommand(t *testing.T) {
	runner := &fakeRunner{result: Result{Code: 0, Stdout: "ok"}}
	out, err := runCmdImpl(context.Background(), runner, "/repo", "ls", "-la src", 0, 0)
	if err != nil {
		t.Fatalf("runCmdImpl: %v", err)
	}
	if runner.gotName != "ls" {
		t.Fatalf("ran %q, want ls", runner.gotName)
	}
	if len(runner.gotArgs) != 2 || runner.gotArgs[0] != "-la" || runner.gotArgs[1] != "src" {
		t.Fatalf("args = %v, want [-la src]", runner.gotArgs)
	}

	var res cmdResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Status != "ok" || res.Stdout != "ok" {
		t.Fatalf("result = %+v", res)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a b c", []string{"a", "b", "c"}},
		{`-m "two words"`, []string{"-m", "two words"}},
		{`'single quoted'`, []string{"single quoted"}},
		{`a "b 'c' d"`, []string{"a", "b 'c' d"}},
	}
	for _, tt := range tests {
		got := parseArgs(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("parseArgs(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("parseArgs(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestTruncateOutput(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	out, truncated := truncateOutput(strings.Join(lines, "\n"), 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got := strings.Count(out, "\n"); got != 9 {
		t.Fatalf("kept %d newlines, want 9", got)
	}

	out, truncated = truncateOutput("short", 10)
	if truncated || out != "short" {
		t.Fatalf("short output mangled: (%q, %v)", out, truncated)
	}

	long := strings.Repeat("x", maxRunCmdChars+100)
	out, truncated = truncateOutput(long, 10)
	if !truncated || len(out) != maxRunCmdChars {
		t.Fatalf("char cap not applied: len=%d", len(out))
	}
}

func TestTimeoutClamping(t *testing.T) {
	if got := parseTimeoutArg(nil); got != defaultRunCmdTimeout {
		t.Fatalf("nil timeout = %v, want default", got)
	}
	if got := parseTimeoutArg(float64(1)); got != minRunCmdTimeout {
		t.Fatalf("tiny timeout = %v, want min", got)
	}
	if got := parseTimeoutArg(float64(9999)); got != maxRunCmdTimeout {
		t.Fatalf("huge timeout = %v, want max", got)
	}
}
