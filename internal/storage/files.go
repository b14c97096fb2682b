package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nuclearw/chanop/internal/chanop"
)

const maxEntries = 5000

// LoadMasks reads the persisted mask database from file.
// Returns an empty slice if no database exists yet.
func LoadMasks(dataDir string) ([]chanop.StoredMask, error) {
	path := filepath.Join(dataDir, "masks.txt")
	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []chanop.StoredMask{}, nil
		}
		return nil, err
	}
	var masks []chanop.StoredMask
	for _, line := range lines {
		mask, ok := decodeMask(line)
		if !ok {
			// skip damaged lines rather than losing the whole database
			continue
		}
		masks = append(masks, mask)
	}
	return masks, nil
}

// SaveMasks writes the mask database to file (max 5000 entries, newest kept).
func SaveMasks(dataDir string, masks []chanop.StoredMask) error {
	path := filepath.Join(dataDir, "masks.txt")
	if len(masks) > maxEntries {
		masks = masks[len(masks)-maxEntries:]
	}
	lines := make([]string, 0, len(masks))
	for _, mask := range masks {
		lines = append(lines, encodeMask(mask))
	}
	return writeLines(path, lines)
}

// encodeMask renders one record as a space-separated line:
//
//	<mode> <unix-date> <server> <channel> <mask> [<operator>]
//
// None of the fields can contain a space, so no quoting is needed.
func encodeMask(m chanop.StoredMask) string {
	line := fmt.Sprintf("%c %d %s %s %s", m.Mode, m.Date.Unix(), m.Server, m.Channel, m.Mask)
	if m.Operator != "" {
		line += " " + m.Operator
	}
	return line
}

func decodeMask(line string) (chanop.StoredMask, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || len(fields) > 6 || len(fields[0]) != 1 {
		return chanop.StoredMask{}, false
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return chanop.StoredMask{}, false
	}
	m := chanop.StoredMask{
		Mode:    fields[0][0],
		Date:    time.Unix(ts, 0),
		Server:  fields[2],
		Channel: fields[3],
		Mask:    fields[4],
	}
	if len(fields) == 6 {
		m.Operator = fields[5]
	}
	return m, true
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(file, line); err != nil {
			return err
		}
	}
	return nil
}
