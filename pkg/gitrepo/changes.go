package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/codegate-dev/codegate/pkg/facts"
)

// maxContentBytes caps how much of a changed file is loaded as a
// FileContent fact. Larger files still produce a FileChange fact.
const maxContentBytes = 1 << 20

// CollectChanges turns the working tree's pending changes into facts:
// one FileChange per dirty path plus a FileContent for files small
// enough to scan. Deleted files contribute only the change fact.
func CollectChanges(ctx context.Context, repoRoot string) ([]facts.Fact, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "status", "--porcelain")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gitrepo: git status: %w", err)
	}

	var collection []facts.Fact
	for _, line := range strings.Split(out.String(), "\n") {
		if len(line) < 4 {
			continue
		}
		status := line[:2]
		path := strings.TrimSpace(line[3:])
		// Renames show as "old -> new"; the new path is the live one.
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}

		change := changeTypeFor(status)
		collection = append(collection, facts.FileChange("git", path, change))
		if change == facts.ChangeDeleted {
			continue
		}
		full := filepath.Join(repoRoot, path)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() || info.Size() > maxContentBytes {
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		collection = append(collection, facts.FileContent("git", path, string(content)))
	}
	return collection, nil
}

func changeTypeFor(status string) facts.ChangeType {
	switch {
	case strings.Contains(status, "D"):
		return facts.ChangeDeleted
	case strings.Contains(status, "A") || strings.Contains(status, "?"):
		return facts.ChangeAdded
	default:
		return facts.ChangeModified
	}
}
