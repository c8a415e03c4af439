package supervisor

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// defaultAllowlist holds substrings that, if present on a matched line,
// exempt it from the error/warning counts. Kept tiny and explicit rather
// than configurable.
var defaultAllowlist = []string{
	"] WARN: deprecated config key",
}

// ScanLogCounts counts "] ERROR:" and "] WARN:" occurrences in the file at
// path, skipping lines containing any allowlisted substring.
func ScanLogCounts(path string) (errors, warnings int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, xerrors.Errorf("opening log file: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if allowlisted(line) {
			continue
		}
		if strings.Contains(line, "] ERROR:") {
			errors++
		}
		if strings.Contains(line, "] WARN:") {
			warnings++
		}
	}
	if err := sc.Err(); err != nil {
		return errors, warnings, xerrors.Errorf("scanning log file: %v", err)
	}
	return errors, warnings, nil
}

func allowlisted(line string) bool {
	for _, a := range defaultAllowlist {
		if strings.Contains(line, a) {
			return true
		}
	}
	return false
}
