package sandbox

import (
	"fmt"
	"os"
	"strings"
)

// ParseMetaFile reads an isolate meta report. A missing file yields an
// empty map, since isolate writes no report when the command never
// started.
func ParseMetaFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meta file: %w", err)
	}
	return parseMeta(string(data)), nil
}

// parseMeta parses isolate's key:value meta format. Values may contain
// colons; only the first one splits. Later duplicates win.
func parseMeta(content string) map[string]string {
	meta := make(map[string]string)

	content = strings.TrimSpace(content)
	if content == "" {
		return meta
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		meta[line[:idx]] = line[idx+1:]
	}
	return meta
}
