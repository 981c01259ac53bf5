package catalog

import (
	"bufio"
	"os"
	"strings"
)

// LoadAliases reads an alias file of "alias = canonical" lines. A missing
// file is an empty map, not an error. Blank lines and # comments are
// ignored; malformed lines are skipped so one bad entry never blocks
// resolution.
func LoadAliases(path string) (map[string]string, error) {
	aliases := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return aliases, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		alias := strings.TrimSpace(line[:idx])
		canonical := strings.TrimSpace(line[idx+1:])
		if alias == "" || canonical == "" {
			continue
		}
		aliases[alias] = canonical
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return aliases, nil
}
