package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gitmarks/gitmarks/internal/merge"
	gmsync "github.com/gitmarks/gitmarks/internal/sync"
)

// FormatResult renders the outcome of a push, pull or sync.
func FormatResult(op gmsync.Operation, res *gmsync.Result) string {
	var b strings.Builder

	switch res.Status {
	case gmsync.StatusOK:
		fmt.Fprintf(&b, "%s %s complete", RenderPass("✓"), capitalize(string(op)))
		var parts []string
		if res.Pushed > 0 {
			parts = append(parts, fmt.Sprintf("%d pushed", res.Pushed))
		}
		if res.Applied > 0 {
			parts = append(parts, fmt.Sprintf("%d applied", res.Applied))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	case gmsync.StatusUpToDate, gmsync.StatusNothingToDo:
		fmt.Fprintf(&b, "%s %s\n", RenderPass("✓"), res.Message)
	case gmsync.StatusInProgress:
		fmt.Fprintf(&b, "%s %s\n", RenderWarn("⚠"), res.Message)
	case gmsync.StatusConflict:
		fmt.Fprintf(&b, "%s %s\n", RenderWarn("⚠"), res.Message)
		b.WriteString(FormatConflicts(res.Conflicts))
		fmt.Fprintf(&b, "\n   Run %s to keep one side.\n", RenderAccent("gm resolve"))
	case gmsync.StatusFirstSyncConflict:
		fmt.Fprintf(&b, "%s %s\n", RenderWarn("⚠"), res.Message)
		fmt.Fprintf(&b, "   Run %s to choose which side to keep.\n", RenderAccent("gm resolve"))
	default:
		fmt.Fprintf(&b, "%s %s\n", RenderFail("✗"), res.Message)
	}

	if res.CommitID != "" && res.Status == gmsync.StatusOK {
		fmt.Fprintf(&b, "   %s\n", RenderMuted("commit "+ShortID(res.CommitID)))
	}
	return b.String()
}

// FormatConflicts lists conflicting paths with what each side did.
func FormatConflicts(conflicts []merge.Conflict) string {
	var b strings.Builder
	for _, c := range conflicts {
		fmt.Fprintf(&b, "   %s  %s\n", c.Path,
			RenderMuted(fmt.Sprintf("(local %s, remote %s)", side(c.Local), side(c.Remote))))
	}
	return b.String()
}

func side(content *string) string {
	if content == nil {
		return "deleted"
	}
	return "changed"
}

// FormatReport renders the status of a profile.
func FormatReport(r *gmsync.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n\n", RenderTitle("gitmarks status"))
	field(&b, "Profile", r.Profile)
	field(&b, "Remote", fmt.Sprintf("%s:%s", r.Branch, r.BasePath))

	if !r.HasSnapshot {
		field(&b, "Last sync", RenderWarn("never"))
	} else {
		field(&b, "Last sync", fmt.Sprintf("%s (%s)",
			r.LastSync.Local().Format("2006-01-02 15:04:05"), Ago(time.Since(r.LastSync))))
		field(&b, "Last commit", ShortID(r.SnapshotCommit))
		field(&b, "Files", fmt.Sprint(r.SnapshotFiles))
	}

	field(&b, "Local changes", changes(r.LocalChanges))
	if r.RemoteChecked {
		field(&b, "Remote head", ShortID(r.RemoteHead))
		field(&b, "Remote changes", changes(r.RemoteChanges))
	} else {
		field(&b, "Remote changes", RenderMuted("not checked"))
	}

	if r.Running {
		field(&b, "State", RenderAccent("sync running"))
	} else if r.Suppressed {
		field(&b, "State", RenderMuted("applying remote changes"))
	}
	b.WriteString("\n")
	return b.String()
}

func field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s%s\n", renderLabel(label+":"), value)
}

func changes(n int) string {
	if n == 0 {
		return RenderPass("none")
	}
	return RenderWarn(fmt.Sprint(n))
}

// ShortID abbreviates a commit id.
func ShortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// Ago renders a duration coarsely.
func Ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
