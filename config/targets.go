package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"imobot/models"
)

// LoadTargets reads a newline-delimited list of URLs. Blank lines and lines
// starting with '#' are ignored.
func LoadTargets(path string) ([]models.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targets: open %q: %w", path, err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("targets: read %q: %w", path, err)
	}

	targets := make([]models.Target, len(urls))
	for i, u := range urls {
		targets[i] = models.Target{URL: u, Index: i, Total: len(urls)}
	}
	return targets, nil
}
