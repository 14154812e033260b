package dap

import (
	"fmt"
	"strings"
	"time"
)

// DAS holds dataset attributes keyed by container name, then attribute name.
// Values keep their textual form with surrounding quotes stripped.
type DAS map[string]map[string]string

// Attr returns the named attribute of a container.
func (d DAS) Attr(container, name string) (string, bool) {
	attrs, ok := d[container]
	if !ok {
		return "", false
	}
	value, ok := attrs[name]
	return value, ok
}

// ParseDAS parses the attribute listing served at {dataset}.das. Nested
// containers are flattened with dotted names.
func ParseDAS(text string) (DAS, error) {
	s := &lineScanner{lines: strings.Split(text, "\n")}

	first, ok := s.next()
	if !ok || !strings.HasPrefix(first, "Attributes") {
		return nil, fmt.Errorf("%w: listing does not start with Attributes", ErrMalformedResponse)
	}

	das := DAS{}
	var stack []string
	for {
		line, ok := s.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated attribute listing", ErrMalformedResponse)
		}
		switch {
		case strings.HasPrefix(line, "}"):
			if len(stack) == 0 {
				return das, nil
			}
			stack = stack[:len(stack)-1]
		case strings.HasSuffix(line, "{"):
			name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			stack = append(stack, name)
		default:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: attribute outside container: %q", ErrMalformedResponse, line)
			}
			name, value, err := parseAttrDecl(line)
			if err != nil {
				return nil, err
			}
			container := strings.Join(stack, ".")
			if das[container] == nil {
				das[container] = make(map[string]string)
			}
			das[container][name] = value
		}
	}
}

// parseAttrDecl splits a "Type name value;" attribute line.
func parseAttrDecl(line string) (string, string, error) {
	line = strings.TrimSuffix(line, ";")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("%w: bad attribute %q", ErrMalformedResponse, line)
	}
	name := fields[1]
	value := ""
	if len(fields) == 3 {
		value = strings.TrimSpace(fields[2])
		value = strings.Trim(value, `"`)
	}
	return name, value, nil
}

// ParseTimeUnits interprets a CF-style time units attribute such as
// "minutes since 2023-09-25 00:30:00" and returns the epoch together with
// the length of one unit.
func ParseTimeUnits(units string) (time.Time, time.Duration, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || fields[1] != "since" {
		return time.Time{}, 0, fmt.Errorf("%w: time units %q", ErrMalformedResponse, units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSuffix(fields[0], "s")) {
	case "second":
		step = time.Second
	case "minute":
		step = time.Minute
	case "hour":
		step = time.Hour
	case "day":
		step = 24 * time.Hour
	default:
		return time.Time{}, 0, fmt.Errorf("%w: time unit %q", ErrMalformedResponse, fields[0])
	}

	stamp := strings.Join(fields[2:], " ")
	stamp = strings.TrimSuffix(stamp, " UTC")
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if epoch, err := time.ParseInLocation(layout, stamp, time.UTC); err == nil {
			return epoch, step, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("%w: time epoch %q", ErrMalformedResponse, stamp)
}
