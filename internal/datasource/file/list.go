package file

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// maxListLine bounds one entry; signed object URLs get long.
const maxListLine = 1 << 20

// ReadList reads a list file: one input location per line, in order. Blank
// lines and lines starting with '#' are skipped, surrounding whitespace
// (including a CR from CRLF files) is trimmed, and a leading UTF-8 BOM is
// ignored.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxListLine)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
