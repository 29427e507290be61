// Package logx is the leveled logging facade every AFD subsystem writes
// through, instead of each package rolling its own prefix handling.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Sign is the fixed log-sign alphabet of the error-handling design (§7).
type Sign string

// The closed set of log signs. Every log line carries exactly one.
const (
	INFO    Sign = "INFO"
	CONFIG  Sign = "CONFIG"
	WARN    Sign = "WARN"
	ERROR   Sign = "ERROR"
	FATAL   Sign = "FATAL"
	DEBUG   Sign = "DEBUG"
	OFFLINE Sign = "OFFLINE"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	minSign          = DEBUG
	order            = map[Sign]int{DEBUG: 0, INFO: 1, CONFIG: 2, OFFLINE: 3, WARN: 4, ERROR: 5, FATAL: 6}
)

// SetOutput redirects all log output, e.g. to a rolling file in log/.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel suppresses signs ranked below min (DEBUG is the least severe).
func SetLevel(min Sign) {
	mu.Lock()
	defer mu.Unlock()
	minSign = min
}

// ParseSign maps a sign's name (any case) to its Sign value, for CLI flags
// and config files that pass the level as a string.
func ParseSign(name string) (Sign, bool) {
	for _, s := range []Sign{DEBUG, CONFIG, INFO, OFFLINE, WARN, ERROR, FATAL} {
		if string(s) == name || strings.EqualFold(string(s), name) {
			return s, true
		}
	}
	return "", false
}

// subject returns a human label for whatever this log line is about: a
// host alias, a directory alias, or "" for the daemon itself.
func subject(o interface{}) string {
	switch v := o.(type) {
	case nil:
		return "-"
	case string:
		if v == "" {
			return "-"
		}
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func logf(sign Sign, o interface{}, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if order[sign] < order[minSign] {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %-7s %-16s %s\n", ts, sign, subject(o), msg)
}

// Logf logs at the given sign.
func Logf(sign Sign, o interface{}, format string, args ...interface{}) { logf(sign, o, format, args...) }

// Infof logs an INFO line.
func Infof(o interface{}, format string, args ...interface{}) { logf(INFO, o, format, args...) }

// Configf logs a CONFIG line (configuration errors, §7).
func Configf(o interface{}, format string, args ...interface{}) { logf(CONFIG, o, format, args...) }

// Warnf logs a WARN line.
func Warnf(o interface{}, format string, args ...interface{}) { logf(WARN, o, format, args...) }

// Errorf logs an ERROR line.
func Errorf(o interface{}, format string, args ...interface{}) { logf(ERROR, o, format, args...) }

// Fatalf logs a FATAL line. It does not exit the process; callers decide.
func Fatalf(o interface{}, format string, args ...interface{}) { logf(FATAL, o, format, args...) }

// Debugf logs a DEBUG line.
func Debugf(o interface{}, format string, args ...interface{}) { logf(DEBUG, o, format, args...) }

// Offlinef logs an OFFLINE line (host transitions to ERROR_OFFLINE).
func Offlinef(o interface{}, format string, args ...interface{}) { logf(OFFLINE, o, format, args...) }
