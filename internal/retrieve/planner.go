package retrieve

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/status"
)

// MaxHTTPDirBuffer bounds how much of a directory listing response the
// planner will read before giving up, per §4.4 "MAX_HTTP_DIR_BUFFER safety
// cap".
const MaxHTTPDirBuffer = 16 << 20

// Mask is one file-mask filter entry. Masks are tried in order and the
// first one that matches decides: an accept mask accepts the name, an
// inverse (reject) mask rejects it.
type Mask struct {
	Pattern string
	Inverse bool
}

// Caps bounds a single planning cycle, from the directory's FRA record.
type Caps struct {
	MaxCopiedFiles    int
	MaxCopiedFileSize int64
}

// Plan is the result of one planning cycle: the entries selected for
// fetch this cycle, and whether more remain for a future cycle.
type Plan struct {
	ToFetch         []ListEntry
	MoreFilesInList bool
}

// Params bundles everything Plan needs beyond the list and caps.
type Params struct {
	AcceptDotFiles bool
	Masks          []Mask
	IgnoreSize     int64
	IgnoreSizeSign status.GtLtSign
	IgnoreFileTime int64
	IgnoreTimeSign status.GtLtSign
	StupidMode     status.StupidMode
	Remove         bool
	DontGetDirList bool
	Now            time.Time
}

// CheckName reports whether name passes the dotfile and mask-group rules
// of §4.4 step 3: reject dotfiles unless accepted, accept on first mask
// match, skip a mask group on inverse-match.
func CheckName(name string, p Params) bool {
	if strings.HasPrefix(name, ".") && !p.AcceptDotFiles {
		return false
	}
	if len(p.Masks) == 0 {
		return true
	}
	for _, m := range p.Masks {
		matched, _ := path.Match(m.Pattern, name)
		if m.Inverse {
			if matched {
				return false
			}
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// sizeEligible applies ignore_size via gt_lt_sign: the file is eligible
// iff the relation holds against the threshold, or the threshold is zero.
func sizeEligible(size int64, threshold int64, sign status.GtLtSign) bool {
	return sign.Matches(size, threshold)
}

func ageEligible(modTime time.Time, now time.Time, threshold int64, sign status.GtLtSign) bool {
	age := int64(now.Sub(modTime).Seconds())
	return sign.Matches(age, threshold)
}

// PlanCycle runs one planning cycle against list for the given candidates
// (already produced by either the resume path or a fresh listing scan),
// applying check_name, size/age filters, and list reconciliation, and
// respecting caps (§4.4 steps 3-5).
func PlanCycle(list *List, candidates []Entry, caps Caps, p Params) (*Plan, error) {
	plan := &Plan{}
	var copiedFiles int
	var copiedSize int64

	for _, c := range candidates {
		if !CheckName(c.Name, p) {
			continue
		}
		if c.HasSize && p.IgnoreSize != 0 && !sizeEligible(c.Size, p.IgnoreSize, p.IgnoreSizeSign) {
			continue
		}
		if c.HasModTime && p.IgnoreFileTime != 0 && !ageEligible(c.ModTime, p.Now, p.IgnoreFileTime, p.IgnoreTimeSign) {
			continue
		}

		idx, err := list.Find(c.Name)
		if err != nil {
			return nil, err
		}

		var toAssign bool
		err = func() error {
			if idx < 0 {
				if copiedFiles >= caps.MaxCopiedFiles || (caps.MaxCopiedFileSize > 0 && copiedSize+c.Size > caps.MaxCopiedFileSize) {
					plan.MoreFilesInList = true
					return nil
				}
				e := ListEntry{Name: c.Name, ModTime: c.ModTime, Size: c.Size, InList: true}
				if _, err := list.Append(e); err != nil {
					return err
				}
				toAssign = true
				return nil
			}
			return list.WithEntryLock(idx, func(e *ListEntry) error {
				e.InList = true
				switch {
				case p.StupidMode == status.GetOnceOnly || p.Remove:
					if !e.Retrieved && e.Assigned == 0 {
						if copiedFiles >= caps.MaxCopiedFiles {
							plan.MoreFilesInList = true
							return nil
						}
						toAssign = true
					}
				default: // persistent mode
					if e.ModTime != c.ModTime || e.Size != c.Size {
						e.Retrieved = false
						e.Assigned = 0
						e.ModTime = c.ModTime
						e.Size = c.Size
					}
					if p.StupidMode == status.GetOnceOnly && e.Retrieved {
						return nil
					}
					if !e.Retrieved && e.Assigned == 0 {
						if copiedFiles >= caps.MaxCopiedFiles {
							plan.MoreFilesInList = true
							return nil
						}
						toAssign = true
					}
				}
				return nil
			})
		}()
		if err != nil {
			return nil, err
		}
		if toAssign {
			plan.ToFetch = append(plan.ToFetch, ListEntry{Name: c.Name, ModTime: c.ModTime, Size: c.Size})
			copiedFiles++
			copiedSize += c.Size
		}
	}

	if p.StupidMode == status.Persistent {
		if err := list.Compact(); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// ResumeCycle implements the resume path of §4.4 step 1: iterate the
// persisted list taking unassigned, unretrieved entries until caps are
// reached, without contacting the remote server.
func ResumeCycle(list *List, caps Caps) (*Plan, error) {
	plan := &Plan{}
	entries, err := list.Entries()
	if err != nil {
		return nil, err
	}
	var copiedFiles int
	var copiedSize int64
	for _, e := range entries {
		if e.Retrieved || e.Assigned != 0 {
			continue
		}
		if copiedFiles >= caps.MaxCopiedFiles || (caps.MaxCopiedFileSize > 0 && copiedSize+e.Size > caps.MaxCopiedFileSize) {
			plan.MoreFilesInList = true
			break
		}
		plan.ToFetch = append(plan.ToFetch, e)
		copiedFiles++
		copiedSize += e.Size
	}
	return plan, nil
}

// FetchListing issues GET on dirURL and returns the raw body, bounded by
// MaxHTTPDirBuffer, per §4.4 "GET /dir/ ... bounded by a MAX_HTTP_DIR_BUFFER
// safety cap; reject anything larger".
func FetchListing(ctx context.Context, client *http.Client, dirURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dirURL, nil)
	if err != nil {
		return nil, afderr.New(afderr.Configuration, dirURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, afderr.New(afderr.TransientNetwork, dirURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, afderr.Newf(afderr.TransientNetwork, dirURL, "unexpected status %d", resp.StatusCode)
	}
	limited := io.LimitReader(resp.Body, MaxHTTPDirBuffer+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, afderr.New(afderr.TransientNetwork, dirURL, err)
	}
	if len(body) > MaxHTTPDirBuffer {
		return nil, afderr.Newf(afderr.ProtocolParse, dirURL, "directory listing exceeds %d bytes", MaxHTTPDirBuffer)
	}
	return body, nil
}

// HeadFile issues HEAD on fileURL to learn mtime/size when a listing
// layout didn't carry them (§4.4 step 3).
func HeadFile(ctx context.Context, client *http.Client, fileURL string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return Entry{}, afderr.New(afderr.Configuration, fileURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Entry{}, afderr.New(afderr.TransientNetwork, fileURL, err)
	}
	defer resp.Body.Close()
	e := Entry{Name: path.Base(fileURL)}
	if resp.ContentLength >= 0 {
		e.Size, e.HasSize = resp.ContentLength, true
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := time.Parse(http.TimeFormat, lm); err == nil {
			e.ModTime, e.HasModTime = t, true
		}
	}
	return e, nil
}

// ExpandMaskAsCandidate synthesises a candidate entry from a file mask
// when DONT_GET_DIR_LIST is set, "as if the mask itself were the
// filename" (§4.4 step 2). Template escapes use the %t<fmt> form of the
// assemble name rule, but only %tY, %ty, %tm, %td, %tH and %tM expand;
// any other %-escape expands to nothing.
func ExpandMaskAsCandidate(mask string, now time.Time) Entry {
	return Entry{Name: expandMaskTemplate(mask, now)}
}

func expandMaskTemplate(mask string, now time.Time) string {
	utc := now.UTC()
	var b strings.Builder
	for i := 0; i < len(mask); i++ {
		if mask[i] != '%' || i+1 >= len(mask) {
			b.WriteByte(mask[i])
			continue
		}
		i++
		if mask[i] != 't' || i+1 >= len(mask) {
			continue
		}
		i++
		b.WriteString(timeField(mask[i], utc))
	}
	return b.String()
}

func timeField(field byte, t time.Time) string {
	switch field {
	case 'Y':
		return t.Format("2006")
	case 'y':
		return t.Format("06")
	case 'm':
		return t.Format("01")
	case 'd':
		return t.Format("02")
	case 'H':
		return t.Format("15")
	case 'M':
		return t.Format("04")
	default:
		return ""
	}
}
