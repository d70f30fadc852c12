package rawcache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"2006-01-02",
}

// record is one CSV row addressed by upper-cased header name.
type record struct {
	file   string
	line   int
	index  map[string]int
	fields []string
}

func (r record) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) fail(col string, err error) error {
	return fmt.Errorf("%s:%d column %s: %w", filepath.Base(r.file), r.line, col, err)
}

func (r record) time(col string) (time.Time, error) {
	v := r.str(col)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, r.fail(col, fmt.Errorf("unrecognised timestamp %q", v))
}

// optFloat returns nil for empty or NaN cells.
func (r record) optFloat(col string) (*float64, error) {
	v := r.str(col)
	if v == "" || strings.EqualFold(v, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, r.fail(col, err)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

func (r record) float(col string) (float64, error) {
	f, err := r.optFloat(col)
	if err != nil || f == nil {
		return 0, err
	}
	return *f, nil
}

func (r record) int(col string) (int, error) {
	v := r.str(col)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, r.fail(col, err)
	}
	return int(f), nil
}

// readTable streams every row of every file matching pattern in name order.
func readTable(root, pattern string, fn func(record) error) error {
	files, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func readFile(path string, fn func(record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header %s: %w", filepath.Base(path), err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read %s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(record{file: path, line: line, index: index, fields: fields}); err != nil {
			return err
		}
	}
}
