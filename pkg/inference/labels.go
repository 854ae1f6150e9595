package inference

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadLabels reads a newline-delimited label file.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open labels: %w", ErrModelLoad, err)
	}
	defer f.Close()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}
	return labels, nil
}

// ParseLabels returns the labels in file order. Surrounding whitespace is
// trimmed and blank lines are skipped; a repeated label is an error.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			continue
		}
		if prev, ok := seen[label]; ok {
			return nil, fmt.Errorf("duplicate label %q on lines %d and %d", label, prev, line)
		}
		seen[label] = line
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels")
	}
	return labels, nil
}
