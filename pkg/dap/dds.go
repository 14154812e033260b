package dap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dim is one named dimension of a DAP array.
type Dim struct {
	Name string
	Size int
}

// Array is an atomic DAP variable, scalar when Dims is empty.
type Array struct {
	Type string
	Name string
	Dims []Dim
}

// Len returns the number of elements the array holds.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Dims {
		n *= d.Size
	}
	return n
}

// Grid pairs a data array with its coordinate map vectors.
type Grid struct {
	Name  string
	Array Array
	Maps  []Array
}

// Var is one top-level dataset variable: exactly one of Array or Grid is set.
type Var struct {
	Array *Array
	Grid  *Grid
}

// Name returns the declared variable name.
func (v Var) Name() string {
	if v.Array != nil {
		return v.Array.Name
	}
	return v.Grid.Name
}

// DDS is a parsed dataset descriptor with variables in declaration order.
type DDS struct {
	Name string
	Vars []Var
}

// Lookup returns the variable with the given name.
func (d *DDS) Lookup(name string) (Var, bool) {
	for _, v := range d.Vars {
		if v.Name() == name {
			return v, true
		}
	}
	return Var{}, false
}

var (
	arrayDeclRe = regexp.MustCompile(`^([A-Za-z0-9]+)\s+([^\s\[;]+)\s*((?:\[[^\]]+\])*);$`)
	dimRe       = regexp.MustCompile(`\[\s*(?:([^\s=\]]+)\s*=\s*)?(\d+)\s*\]`)
)

// ParseDDS parses the textual dataset descriptor served at {dataset}.dds and
// inside .dods responses. Only atomic arrays and grids are supported; the
// GES DISC gridded products use nothing else.
func ParseDDS(text string) (*DDS, error) {
	s := &lineScanner{lines: strings.Split(text, "\n")}

	first, ok := s.next()
	if !ok || !strings.HasPrefix(first, "Dataset") {
		return nil, fmt.Errorf("%w: descriptor does not start with Dataset", ErrMalformedResponse)
	}

	dds := &DDS{}
	for {
		line, ok := s.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated descriptor", ErrMalformedResponse)
		}
		switch {
		case strings.HasPrefix(line, "}"):
			dds.Name = closingName(line)
			return dds, nil
		case strings.HasPrefix(line, "Grid"):
			g, err := s.parseGrid()
			if err != nil {
				return nil, err
			}
			dds.Vars = append(dds.Vars, Var{Grid: g})
		case strings.HasPrefix(line, "Structure") || strings.HasPrefix(line, "Sequence"):
			return nil, fmt.Errorf("%w: %s variables", ErrUnsupportedType, strings.Fields(line)[0])
		default:
			a, err := parseArrayDecl(line)
			if err != nil {
				return nil, err
			}
			dds.Vars = append(dds.Vars, Var{Array: a})
		}
	}
}

type lineScanner struct {
	lines []string
	pos   int
}

func (s *lineScanner) next() (string, bool) {
	for s.pos < len(s.lines) {
		line := strings.TrimSpace(s.lines[s.pos])
		s.pos++
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (s *lineScanner) parseGrid() (*Grid, error) {
	g := &Grid{}
	section := ""
	for {
		line, ok := s.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated grid", ErrMalformedResponse)
		}
		switch {
		case line == "ARRAY:":
			section = "array"
		case line == "MAPS:":
			section = "maps"
		case strings.HasPrefix(line, "}"):
			g.Name = closingName(line)
			if g.Array.Name == "" {
				return nil, fmt.Errorf("%w: grid %q has no array", ErrMalformedResponse, g.Name)
			}
			return g, nil
		default:
			a, err := parseArrayDecl(line)
			if err != nil {
				return nil, err
			}
			switch section {
			case "array":
				g.Array = *a
			case "maps":
				g.Maps = append(g.Maps, *a)
			default:
				return nil, fmt.Errorf("%w: grid member outside ARRAY/MAPS", ErrMalformedResponse)
			}
		}
	}
}

func parseArrayDecl(line string) (*Array, error) {
	m := arrayDeclRe.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("%w: bad declaration %q", ErrMalformedResponse, line)
	}
	a := &Array{Type: m[1], Name: m[2]}
	for _, dm := range dimRe.FindAllStringSubmatch(m[3], -1) {
		size, err := strconv.Atoi(dm[2])
		if err != nil {
			return nil, fmt.Errorf("%w: bad dimension in %q", ErrMalformedResponse, line)
		}
		a.Dims = append(a.Dims, Dim{Name: dm[1], Size: size})
	}
	return a, nil
}

// closingName extracts NAME from a "} NAME;" line.
func closingName(line string) string {
	name := strings.TrimPrefix(line, "}")
	name = strings.TrimSuffix(strings.TrimSpace(name), ";")
	return strings.TrimSpace(name)
}
