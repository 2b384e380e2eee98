package zim

import (
	"strconv"
	"strings"
)

// FormatCounter is the exported form of formatCounter, used by the writer's
// Counter dirent handler to emit M/Counter's body.
func FormatCounter(mimetypes []string, counts map[string]int) string {
	return formatCounter(mimetypes, counts)
}

// ParseCounter is the exported form of parseCounter.
func ParseCounter(s string) (map[string]int, error) {
	return parseCounter(s)
}

// formatCounter encodes a mimetype->count map into the on-disk M/Counter
// body: "mime1=cnt1;mime2=cnt2;..." with no trailing separator. Iteration
// order follows mimetypes, the stable order callers build the map in.
func formatCounter(mimetypes []string, counts map[string]int) string {
	var b strings.Builder
	first := true
	for _, m := range mimetypes {
		n, ok := counts[m]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(';')
		}
		b.WriteString(m)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(n))
		first = false
	}
	return b.String()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseCounter decodes an M/Counter body. A record is "MIME_TYPE=COUNT"
// where COUNT is a decimal run and MIME_TYPE may itself contain ';' and '='
// (e.g. "text/html;raw=true"): the split point is the last '=' in a
// candidate field that is followed only by digits up to the next ';' or
// end of string. Growing the candidate field across ';' boundaries handles
// mimetypes with embedded parameters. A malformed field aborts parsing;
// entries already found are kept, the remainder is dropped.
func parseCounter(s string) (map[string]int, error) {
	result := make(map[string]int)
	i := 0
	for i < len(s) {
		segStart := i
		for {
			next := strings.IndexByte(s[segStart:], ';')
			var windowEnd int
			if next == -1 {
				windowEnd = len(s)
			} else {
				windowEnd = segStart + next
			}
			window := s[i:windowEnd]
			if eq := strings.LastIndexByte(window, '='); eq >= 0 {
				suffix := window[eq+1:]
				if allDigits(suffix) {
					n, err := strconv.Atoi(suffix)
					if err == nil {
						result[window[:eq]] = n
						i = windowEnd + 1
						goto nextField
					}
				}
			}
			if windowEnd == len(s) {
				return result, nil
			}
			segStart = windowEnd + 1
		}
	nextField:
	}
	return result, nil
}
