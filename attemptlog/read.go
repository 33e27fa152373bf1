package attemptlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

const maxLine = 1 << 20

// Read loads every well-formed entry from the log at path, in file order.
// Lines that aren't valid entries are skipped.
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening attempt log: %w", err)
	}
	defer file.Close() //nolint:errcheck

	return Decode(file)
}

// Decode reads entries from r, skipping malformed lines.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine) //nolint:mnd

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}

		if entry.Attempt < 1 {
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading attempt log: %w", err)
	}

	return entries, nil
}
