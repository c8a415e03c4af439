// Package log provides a small level-based debug logger used throughout
// this module, in place of the standard library's log package. Messages are
// only printed if their level is at or below the globally configured
// DebugVisible level; Lvl1 is the coarsest (almost always wanted) and Lvl5
// the most verbose.
package log

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	ct "github.com/daviddengcn/go-colortext"
)

const (
	lvlWarning = iota - 20
	lvlError
	lvlFatal
	lvlInfo
	lvlPrint
)

var debugMut sync.RWMutex
var debugVisible = 1
var useColors = true
var showTime = false

var regexpPaths = regexp.MustCompile(`.*/`)

func init() {
	if v := os.Getenv("DEBUG_LVL"); v != "" {
		if lvl, err := strconv.Atoi(v); err == nil {
			debugVisible = lvl
		}
	}
}

// SetDebugVisible sets the global debug output level in a goroutine-safe way.
func SetDebugVisible(lvl int) {
	debugMut.Lock()
	defer debugMut.Unlock()
	debugVisible = lvl
}

// DebugVisible returns the currently configured debug level.
func DebugVisible() int {
	debugMut.RLock()
	defer debugMut.RUnlock()
	return debugVisible
}

// SetUseColors turns the coloured level-prefix on or off; tests and
// non-tty consumers usually turn it off.
func SetUseColors(b bool) {
	debugMut.Lock()
	defer debugMut.Unlock()
	useColors = b
}

// SetShowTime makes every log line carry a timestamp, useful when
// correlating simulator output against child-process logs.
func SetShowTime(b bool) {
	debugMut.Lock()
	defer debugMut.Unlock()
	showTime = b
}

func colorFor(lvl int) (ct.Color, bool) {
	switch {
	case lvl == lvlWarning:
		return ct.Yellow, false
	case lvl == lvlError:
		return ct.Red, false
	case lvl == lvlFatal:
		return ct.Red, true
	case lvl == lvlPrint || lvl == lvlInfo:
		return ct.Green, false
	default:
		return ct.None, false
	}
}

func prefixFor(lvl int) string {
	switch lvl {
	case lvlPrint, lvlInfo:
		return "I"
	case lvlWarning:
		return "W"
	case lvlError:
		return "E"
	case lvlFatal:
		return "F"
	default:
		return strconv.Itoa(lvl)
	}
}

func emit(lvl, skip int, msg string) {
	debugMut.RLock()
	visible := debugVisible
	colors := useColors
	withTime := showTime
	debugMut.RUnlock()

	if lvl > 0 && lvl > visible {
		return
	}

	pc, _, line, _ := runtime.Caller(skip)
	name := regexpPaths.ReplaceAllString(runtime.FuncForPC(pc).Name(), "")

	var b string
	if withTime {
		b = fmt.Sprintf("%s ", time.Now().Format("15:04:05.000"))
	}
	b += fmt.Sprintf("%s: (%s:%d) - %s", prefixFor(lvl), name, line, msg)

	if colors {
		c, bright := colorFor(lvl)
		if c != ct.None {
			ct.Foreground(c, bright)
		}
		fmt.Fprintln(os.Stderr, b)
		if c != ct.None {
			ct.ResetColor()
		}
		return
	}
	fmt.Fprintln(os.Stderr, b)
}

func lvld(lvl int, args ...interface{}) {
	emit(lvl, 3, fmt.Sprint(args...))
}

func lvlf(lvl int, f string, args ...interface{}) {
	emit(lvl, 3, fmt.Sprintf(f, args...))
}

// Lvl1 is informational output that is displayed almost always.
func Lvl1(args ...interface{}) { lvld(1, args...) }

// Lvl2 is more verbose, useful when following one server's behaviour.
func Lvl2(args ...interface{}) { lvld(2, args...) }

// Lvl3 gives debug output; can get noisy with many servers.
func Lvl3(args ...interface{}) { lvld(3, args...) }

// Lvl4 is wire-protocol level detail.
func Lvl4(args ...interface{}) { lvld(4, args...) }

// Lvl5 is for the most verbose tracing, e.g. full message dumps.
func Lvl5(args ...interface{}) { lvld(5, args...) }

// Lvlf1 is Lvl1 with a format string.
func Lvlf1(f string, args ...interface{}) { lvlf(1, f, args...) }

// Lvlf2 is Lvl2 with a format string.
func Lvlf2(f string, args ...interface{}) { lvlf(2, f, args...) }

// Lvlf3 is Lvl3 with a format string.
func Lvlf3(f string, args ...interface{}) { lvlf(3, f, args...) }

// Lvlf4 is Lvl4 with a format string.
func Lvlf4(f string, args ...interface{}) { lvlf(4, f, args...) }

// Lvlf5 is Lvl5 with a format string.
func Lvlf5(f string, args ...interface{}) { lvlf(5, f, args...) }
