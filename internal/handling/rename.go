package handling

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/logx"
)

// RenameRule is one pattern/replacement pair of a named rename rule, tried
// in order; the first pattern match wins (§4.3 "first matching pattern
// wins within rule").
type RenameRule struct {
	Pattern     string // a filepath.Match-style glob
	Replacement string
}

// resolveCollision picks a final name for candidate inside dir, given the
// current in-flight batch names, applying the overwrite-or-suffix policy
// of §4.3's Collision policy.
func resolveCollision(dir, candidate string, batch []string, overwrite bool) (final string, overwrote bool, overwrittenSize int64) {
	exists := func(name string) bool {
		if name == "" {
			return false
		}
		for _, b := range batch {
			if b == name {
				return true
			}
		}
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && !fi.IsDir() {
			return true
		}
		return false
	}

	if !exists(candidate) {
		return candidate, false, 0
	}
	if overwrite {
		if fi, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
			overwrittenSize = fi.Size()
		}
		return candidate, true, overwrittenSize
	}
	for n := 1; ; n++ {
		try := fmt.Sprintf("%s;%d", candidate, n)
		if !exists(try) {
			return try, false, 0
		}
	}
}

// applyRenameEach applies transform to every file's name, handling
// collisions per policy, then recounts (§4.3: "Recount if any rename
// collided").
func applyRenameEach(batch *Batch, transform func(string) string, overwrite bool) error {
	collided := false
	renamed := make([]string, 0, len(batch.FilesToSend))
	for _, name := range batch.FilesToSend {
		newName := transform(name)
		if newName == name {
			renamed = append(renamed, name)
			continue
		}
		final, overwrote, overwrittenSize := resolveCollision(batch.Dir, newName, renamed, overwrite)
		if overwrote {
			collided = true
			batch.TotalSize -= overwrittenSize
		} else if final != newName {
			collided = true
		}
		oldPath := filepath.Join(batch.Dir, name)
		newPath := filepath.Join(batch.Dir, final)
		if err := os.Rename(oldPath, newPath); err != nil {
			logx.Errorf(oldPath, "rename failed: %v", err)
			renamed = append(renamed, name)
			continue
		}
		if overwrote {
			for j, r := range renamed {
				if r == final {
					renamed = append(renamed[:j], renamed[j+1:]...)
					break
				}
			}
		}
		renamed = append(renamed, final)
	}
	batch.FilesToSend = renamed
	if collided {
		return batch.recount()
	}
	return nil
}

// applyPrefix implements "prefix add <s>" / "prefix del <s>".
func applyPrefix(batch *Batch, args []string) error {
	if len(args) < 2 {
		return afderr.Newf(afderr.Configuration, "prefix", "expected 'add <s>' or 'del <s>'")
	}
	switch args[0] {
	case "add":
		prefix := args[1]
		return applyRenameEach(batch, func(name string) string { return prefix + name }, false)
	case "del":
		prefix := args[1]
		return applyRenameEach(batch, func(name string) string { return strings.TrimPrefix(name, prefix) }, false)
	default:
		return afderr.Newf(afderr.Configuration, "prefix", "unknown sub-mode %q", args[0])
	}
}

// applyRenameRule looks up a named rule and renames every file by its
// first matching pattern. A missing rule is skipped with a warning, not a
// fatal error (§4.3 "Missing rename rule").
func applyRenameRule(batch *Batch, args []string, deps Deps) error {
	if len(args) == 0 {
		return afderr.Newf(afderr.Configuration, "rename", "missing rule name")
	}
	ruleName := args[0]
	overwrite := hasArg(args[1:], "overwrite")

	rules, ok := deps.RenameRules[ruleName]
	if !ok {
		logx.Warnf(ruleName, "rename rule not found, skipping option")
		return nil
	}

	collided := false
	renamed := make([]string, 0, len(batch.FilesToSend))
	for _, name := range batch.FilesToSend {
		newName := name
		for _, r := range rules {
			if matched, _ := filepath.Match(r.Pattern, name); matched {
				newName = expandRenameReplacement(r.Replacement, name, r.Pattern)
				break
			}
		}
		if newName == name {
			renamed = append(renamed, name)
			continue
		}
		final, overwrote, overwrittenSize := resolveCollision(batch.Dir, newName, renamed, overwrite)
		if overwrote {
			collided = true
			batch.TotalSize -= overwrittenSize
		} else if final != newName {
			collided = true
		}
		oldPath := filepath.Join(batch.Dir, name)
		newPath := filepath.Join(batch.Dir, final)
		if err := os.Rename(oldPath, newPath); err != nil {
			logx.Errorf(oldPath, "rename rule %s failed: %v", ruleName, err)
			renamed = append(renamed, name)
			continue
		}
		if overwrote {
			for j, r := range renamed {
				if r == final {
					renamed = append(renamed[:j], renamed[j+1:]...)
					break
				}
			}
		}
		renamed = append(renamed, final)
	}
	batch.FilesToSend = renamed
	if collided {
		return batch.recount()
	}
	return nil
}

// expandRenameReplacement substitutes the literal matched name for a "*"
// wildcard in the replacement template, the simplest AFD rename.rule idiom.
func expandRenameReplacement(replacement, matchedName, pattern string) string {
	if strings.Contains(pattern, "*") && strings.Contains(replacement, "*") {
		return strings.Replace(replacement, "*", matchedName, 1)
	}
	return replacement
}
