package log

import (
	"fmt"
	"os"
)

// Info prints an informational message regardless of DebugVisible.
func Info(args ...interface{}) { emit(lvlInfo, 3, fmt.Sprint(args...)) }

// Infof is Info with a format string.
func Infof(f string, args ...interface{}) { emit(lvlInfo, 3, fmt.Sprintf(f, args...)) }

// Warn prints a warning message.
func Warn(args ...interface{}) { emit(lvlWarning, 3, fmt.Sprint(args...)) }

// Warnf is Warn with a format string.
func Warnf(f string, args ...interface{}) { emit(lvlWarning, 3, fmt.Sprintf(f, args...)) }

// Error prints an error message.
func Error(args ...interface{}) { emit(lvlError, 3, fmt.Sprint(args...)) }

// Errorf is Error with a format string.
func Errorf(f string, args ...interface{}) { emit(lvlError, 3, fmt.Sprintf(f, args...)) }

// Fatal prints a fatal error message and exits the process with status 1.
func Fatal(args ...interface{}) {
	emit(lvlFatal, 3, fmt.Sprint(args...))
	os.Exit(1)
}

// Fatalf is Fatal with a format string.
func Fatalf(f string, args ...interface{}) {
	emit(lvlFatal, 3, fmt.Sprintf(f, args...))
	os.Exit(1)
}

// ErrFatal calls Fatal if err is non-nil, prefixing the message with err.
func ErrFatal(err error, args ...interface{}) {
	if err != nil {
		emit(lvlFatal, 3, err.Error()+" "+fmt.Sprint(args...))
		os.Exit(1)
	}
}
