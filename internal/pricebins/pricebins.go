package pricebins

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultEdges spans the market price floor to above the current cap.
var DefaultEdges = []float64{-1000, -100, 0, 50, 100, 200, 300, 500, 1000, 5000, 10000, 20000}

// Bin is a price interval [Lower, Upper); the final bin of a table also includes Upper.
type Bin struct {
	Name   string
	Lower  float64
	Upper  float64
	Closed bool
}

// Contains reports whether price falls inside the bin.
func (b Bin) Contains(price float64) bool {
	if price < b.Lower {
		return false
	}
	if price < b.Upper {
		return true
	}
	return b.Closed && price == b.Upper
}

// OutOfRangeError reports a price that no configured bin covers.
type OutOfRangeError struct {
	Price float64
	Lower float64
	Upper float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("price %s outside bin coverage [%s, %s]", formatEdge(e.Price), formatEdge(e.Lower), formatEdge(e.Upper))
}

// Table is an ordered, contiguous set of bins. It is immutable once built.
type Table struct {
	bins []Bin
}

// New builds a table from strictly increasing edges.
func New(edges []float64) (*Table, error) {
	if len(edges) < 2 {
		return nil, errors.New("price bins need at least two edges")
	}
	bins := make([]Bin, 0, len(edges)-1)
	for i := 0; i < len(edges)-1; i++ {
		lower, upper := edges[i], edges[i+1]
		if !(upper > lower) {
			return nil, fmt.Errorf("price bin edges must be strictly increasing: %s then %s", formatEdge(lower), formatEdge(upper))
		}
		closed := i == len(edges)-2
		bins = append(bins, Bin{Name: binName(lower, upper, closed), Lower: lower, Upper: upper, Closed: closed})
	}
	return &Table{bins: bins}, nil
}

// Default returns the table built from DefaultEdges.
func Default() *Table {
	t, err := New(DefaultEdges)
	if err != nil {
		panic("invalid default price bins: " + err.Error())
	}
	return t
}

// Bins returns a copy of the ordered bins.
func (t *Table) Bins() []Bin {
	out := make([]Bin, len(t.bins))
	copy(out, t.bins)
	return out
}

// Names returns bin names in price order.
func (t *Table) Names() []string {
	names := make([]string, len(t.bins))
	for i, b := range t.bins {
		names[i] = b.Name
	}
	return names
}

// Order returns the position of a bin name, or -1.
func (t *Table) Order(name string) int {
	for i, b := range t.bins {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// Lower is the smallest covered price.
func (t *Table) Lower() float64 { return t.bins[0].Lower }

// Upper is the largest covered price.
func (t *Table) Upper() float64 { return t.bins[len(t.bins)-1].Upper }

// Classify returns the unique bin containing price.
func (t *Table) Classify(price float64) (Bin, error) {
	lo, hi := 0, len(t.bins)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		b := t.bins[mid]
		switch {
		case b.Contains(price):
			return b, nil
		case price < b.Lower:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return Bin{}, &OutOfRangeError{Price: price, Lower: t.Lower(), Upper: t.Upper()}
}

// File is the on-disk shape of a bin table.
type File struct {
	Edges []float64 `yaml:"edges"`
}

// LoadFile reads a YAML bin table.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price bins: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse price bins: %w", err)
	}
	return New(f.Edges)
}

func binName(lower, upper float64, closed bool) string {
	closing := ")"
	if closed {
		closing = "]"
	}
	return "[" + formatEdge(lower) + ", " + formatEdge(upper) + closing
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
