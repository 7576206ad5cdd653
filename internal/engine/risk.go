package engine

import (
	"context"
	"path/filepath"
	"strings"
)

// RiskLevel grades how dangerous a pending operation is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskCritical RiskLevel = "critical"
)

// ApprovalRequest describes a high-risk operation awaiting a decision.
type ApprovalRequest struct {
	Operation   string
	Risk        RiskLevel
	FilePath    string
	Description string
}

// Decision is the gate's answer.
type Decision struct {
	Approved bool
	Reason   string
}

// Gate intercepts high-risk operations before the run-loop proceeds.
// Implementations may block indefinitely waiting for external input.
type Gate interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (Decision, error)
}

// criticalPathNames are file targets whose modification is always critical.
var criticalPathNames = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"go.mod":            true,
	"go.sum":            true,
	"cargo.toml":        true,
	"makefile":          true,
	"dockerfile":        true,
}

// destructiveCmdPatterns flag shell commands that can destroy data.
var destructiveCmdPatterns = []string{
	"rm -rf",
	"rm -fr",
	"rm -r /",
	"mkfs",
	"dd if=",
	"> /dev/",
	":(){",
	"git push --force",
	"git push -f",
	"git reset --hard",
	"git clean -fd",
	"chmod -R 777",
	"truncate -s 0",
	"shutdown",
	"reboot",
}

// ClassifyRisk computes the risk level for a tool call from a small fixed
// rule set keyed on operation type and target path patterns.
func ClassifyRisk(call ToolCall) RiskLevel {
	switch call.Name {
	case "run_cmd":
		cmd, _ := call.Args["cmd"].(string)
		args, _ := call.Args["args"].(string)
		full := strings.ToLower(cmd + " " + args)
		for _, p := range destructiveCmdPatterns {
			if strings.Contains(full, p) {
				return RiskCritical
			}
		}
		return RiskMedium

	case "edit", "create", "delete_file":
		path, _ := call.Args["path"].(string)
		base := strings.ToLower(filepath.Base(path))
		if criticalPathNames[base] ||
			strings.HasPrefix(base, ".env") ||
			strings.HasSuffix(base, ".lock") ||
			strings.Contains(path, ".github/") ||
			strings.HasPrefix(base, ".") && base != "." {
			return RiskCritical
		}
		return RiskMedium
	}

	return RiskLow
}

// MaxRisk returns the highest risk level among the calls.
func MaxRisk(calls []ToolCall) RiskLevel {
	max := RiskLow
	for _, c := range calls {
		switch ClassifyRisk(c) {
		case RiskCritical:
			return RiskCritical
		case RiskMedium:
			max = RiskMedium
		}
	}
	return max
}

// resolveApproval consults the gate if present. With no gate configured,
// critical requests are denied (fail safe) and everything else is approved.
func resolveApproval(ctx context.Context, gate Gate, req ApprovalRequest) Decision {
	if gate == nil {
		if req.Risk == RiskCritical {
			return Decision{Approved: false, Reason: "critical-risk operation denied: no approval gate configured"}
		}
		return Decision{Approved: true}
	}
	dec, err := gate.RequestApproval(ctx, req)
	if err != nil {
		return Decision{Approved: false, Reason: "approval gate error: " + err.Error()}
	}
	return dec
}
