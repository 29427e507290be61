// Package handling implements the Handling-Option Engine (C3): an ordered,
// per-destination pipeline of file transformations applied to a batch of
// files about to be forwarded. Each option is syntax-validated ahead of
// time (§4.3) and mutates either file names, file contents, or batch
// metadata; the pipeline tracks aggregate counts so the supervisor's
// queue-conservation invariant (§3.2) stays correct even after renames,
// splits and drops.
package handling

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/convert"
	"github.com/afdist/afd/internal/dedup"
	"github.com/afdist/afd/internal/logx"
)

// Batch is the mutable state threaded through a pipeline run: the set of
// files still destined for this job and their aggregate size.
type Batch struct {
	Dir          string
	FilesToSend  []string
	TotalSize    int64
}

// recount re-stats every name in FilesToSend and replaces
// FilesToSend/TotalSize with the current truth — the "recount after every
// mutating step" policy §4.3 calls out as the simplest correct
// implementation. Names that no longer exist or are directories are
// dropped; files in Dir that are not already listed are not added.
func (b *Batch) recount() error {
	names := make([]string, 0, len(b.FilesToSend))
	var total int64
	for _, name := range b.FilesToSend {
		fi, err := os.Stat(filepath.Join(b.Dir, name))
		if err != nil {
			continue // file vanished (split, deleted, renamed away) - drop silently
		}
		if fi.IsDir() {
			continue
		}
		names = append(names, name)
		total += fi.Size()
	}
	b.FilesToSend = names
	b.TotalSize = total
	return nil
}

// clear empties the batch, used by exec -D's all-files-deleted semantics.
func (b *Batch) clear() {
	b.FilesToSend = nil
	b.TotalSize = 0
}

// deleteAllFiles unlinks every file still in the batch and then clears it,
// matching the original's delete_all_files(): exec -D on nonzero exit
// removes the batch from disk, not just from the in-memory count.
func deleteAllFiles(b *Batch) {
	for _, name := range b.FilesToSend {
		path := filepath.Join(b.Dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logx.Errorf(path, "exec -D: failed to remove: %v", err)
		}
	}
	b.clear()
}

// Option is one pipeline entry: an identifier from the closed set of §4.3
// plus its already-validated arguments.
type Option struct {
	ID   string
	Args []string
}

// Deps bundles the supporting services an Option's Apply may need: the
// rename-rule table, a dedup store, and the assemble sequence counter.
type Deps struct {
	RenameRules  map[string][]RenameRule
	Dedup        *dedup.Store
	SequenceNext func(ruleName string) int
	Now          func() time.Time
}

// Run executes options in order against batch, per §4.3's error semantics:
// per-file errors are logged and skip that file; exec -D on nonzero exit
// empties the whole batch and halts the pipeline.
func Run(batch *Batch, options []Option, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	for _, opt := range options {
		halt, err := applyOne(batch, opt, deps)
		if err != nil {
			logx.Errorf(batch.Dir, "handling option %s failed: %v", opt.ID, err)
		}
		if halt {
			return nil
		}
	}
	return nil
}

// applyOne dispatches a single option. The bool return signals the
// exec -D all-deleted early-halt.
func applyOne(batch *Batch, opt Option, deps Deps) (halt bool, err error) {
	switch opt.ID {
	// Metadata-only options: no effect on names, contents, or counts.
	case "priority", "archive", "age-limit", "lock", "ulock", "lockp",
		"subject", "add-mail-header", "from", "reply-to", "charset",
		"delete", "force-copy", "create-target-dir", "dont-create-target-dir",
		"mirror", "output-log", "sequence-locking", "passive-ftp", "active-ftp",
		"file-name-is-subject", "file-name-is-header", "file-name-is-user",
		"file-name-is-target", "attach-file", "attach-all-files",
		"encode-ansi", "eumetsat-header":
		return false, nil

	case "chmod":
		return false, applyChmod(batch, opt.Args)
	case "chown":
		return false, applyChown(batch, opt.Args)

	case "basename":
		return false, applyRenameEach(batch, stripAtFirstDot, hasArg(opt.Args, "overwrite"))
	case "extension":
		return false, applyRenameEach(batch, stripAtLastDot, hasArg(opt.Args, "overwrite"))
	case "toupper":
		return false, applyRenameEach(batch, strings.ToUpper, false)
	case "tolower":
		return false, applyRenameEach(batch, strings.ToLower, false)
	case "prefix":
		return false, applyPrefix(batch, opt.Args)
	case "rename":
		return false, applyRenameRule(batch, opt.Args, deps)

	case "exec":
		return applyExec(batch, opt.Args)

	case "extract":
		return false, applyExtract(batch, opt.Args)
	case "assemble":
		return false, applyAssemble(batch, opt.Args, deps)
	case "convert":
		return false, applyConvert(batch, opt.Args)
	case "dupcheck":
		return false, applyDupcheck(batch, opt.Args, deps)

	case "tiff2gts", "gts2tiff", "fax2gts", "wmo2ascii", "afw2wmo", "grib2wmo":
		return false, applyLegacyConvert(batch, opt.ID, opt.Args)

	default:
		return false, afderr.Newf(afderr.Configuration, opt.ID, "unknown handling option")
	}
}

func hasArg(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func stripAtFirstDot(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func stripAtLastDot(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func applyChmod(batch *Batch, args []string) error {
	if len(args) == 0 {
		return afderr.Newf(afderr.Configuration, "chmod", "missing mode argument")
	}
	mode, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		return afderr.New(afderr.Configuration, "chmod", err)
	}
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		if err := os.Chmod(path, os.FileMode(mode)); err != nil {
			logx.Errorf(path, "chmod failed: %v", err)
		}
	}
	return nil
}

func applyChown(batch *Batch, args []string) error {
	if len(args) == 0 {
		return afderr.Newf(afderr.Configuration, "chown", "missing user[:group] argument")
	}
	// os.Chown requires numeric uid/gid; name resolution is left to the
	// caller's syntax-validation pass (§4.3 "must have already been
	// syntax-validated"), which is expected to have resolved names there.
	parts := strings.SplitN(args[0], ":", 2)
	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return afderr.New(afderr.Configuration, "chown", err)
	}
	gid := -1
	if len(parts) == 2 {
		gid, err = strconv.Atoi(parts[1])
		if err != nil {
			return afderr.New(afderr.Configuration, "chown", err)
		}
	}
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		if err := os.Chown(path, uid, gid); err != nil {
			logx.Errorf(path, "chown failed: %v", err)
		}
	}
	return nil
}

func applyExec(batch *Batch, args []string) (halt bool, err error) {
	if len(args) == 0 {
		return false, afderr.Newf(afderr.Configuration, "exec", "missing command line")
	}
	mode := ""
	timeout := 30 * time.Second
	i := 0
loop:
	for i < len(args) {
		switch args[i] {
		case "d", "D":
			mode = args[i]
			i++
		case "-l", "-L":
			i++
		case "-t":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					timeout = time.Duration(n) * time.Second
				}
				i += 2
				continue
			}
			i++
		default:
			break loop
		}
	}
	cmdline := strings.Join(args[i:], " ")

	anyFailed := false
	for _, name := range batch.FilesToSend {
		expanded := strings.ReplaceAll(cmdline, "%s", name)
		fields := strings.Fields(expanded)
		if len(fields) == 0 {
			continue
		}
		done := make(chan error, 1)
		cmd := exec.Command(fields[0], fields[1:]...)
		cmd.Dir = batch.Dir
		go func() { done <- cmd.Run() }()
		var runErr error
		select {
		case runErr = <-done:
		case <-time.After(timeout):
			_ = cmd.Process.Kill()
			runErr = afderr.Newf(afderr.TransientNetwork, name, "exec timed out after %s", timeout)
		}
		if runErr != nil {
			anyFailed = true
			logx.Errorf(name, "exec failed: %v", runErr)
			if mode == "D" {
				deleteAllFiles(batch)
				return true, nil
			}
			continue
		}
		if mode == "d" {
			_ = os.Remove(filepath.Join(batch.Dir, name))
		}
	}
	if anyFailed && mode != "D" {
		return false, batch.recount()
	}
	return false, batch.recount()
}

func applyConvert(batch *Batch, args []string) error {
	if len(args) == 0 {
		return afderr.Newf(afderr.Configuration, "convert", "missing conversion name")
	}
	fn, ok := convert.ByName(args[0])
	if !ok {
		return afderr.Newf(afderr.Configuration, args[0], "unknown conversion")
	}
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		if _, err := convert.ToFile(path, fn); err != nil {
			logx.Errorf(path, "convert %s failed: %v", args[0], err)
		}
	}
	return batch.recount()
}

func applyDupcheck(batch *Batch, args []string, deps Deps) error {
	if deps.Dedup == nil {
		return afderr.Newf(afderr.Programmer, "dupcheck", "no dedup store configured")
	}
	timeout := time.Hour
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			timeout = time.Duration(n) * time.Second
		}
	}
	kept := batch.FilesToSend[:0]
	now := deps.Now()
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		dup, err := deps.Dedup.CheckAndRecord(path, now, timeout)
		if err != nil {
			logx.Errorf(path, "dupcheck failed: %v", err)
			kept = append(kept, name)
			continue
		}
		if dup {
			continue // silently dropped, per §4.3
		}
		kept = append(kept, name)
	}
	batch.FilesToSend = kept
	return batch.recount()
}

func applyLegacyConvert(batch *Batch, id string, args []string) error {
	var fn convert.Func
	switch id {
	case "grib2wmo", "tiff2gts":
		// Both are "find a framed binary container and re-emit it as a
		// WMO bulletin"; grib2wmo's CCCC argument (the originating
		// centre) is accepted and ignored, as the header format itself
		// carries no centre field in this profile.
		fn = convert.Mrz2wmo
		_ = args
	case "gts2tiff", "fax2gts", "wmo2ascii", "afw2wmo":
		fn = convert.Wmo
	default:
		return afderr.Newf(afderr.Configuration, id, "unknown legacy conversion")
	}
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		if _, err := convert.ToFile(path, fn); err != nil {
			logx.Errorf(path, "%s failed, removing corrupt input: %v", id, err)
			_ = os.Remove(path)
		}
	}
	return batch.recount()
}

// ParseOptions turns a rule file's already-syntax-validated "option
// args..." lines into Option values, matching the AFD_CONFIG/rename.rule
// text-line convention.
func ParseOptions(lines []string) ([]Option, error) {
	opts := make([]Option, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		opts = append(opts, Option{ID: fields[0], Args: fields[1:]})
	}
	return opts, nil
}
