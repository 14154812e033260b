package dap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// dataMarker separates the textual descriptor from the XDR payload in a
// .dods response.
var dataMarker = []byte("\nData:\n")

// DecodeDods parses a .dods response body: the descriptor of the projected
// variables followed by their values in declaration order. Grid values are
// keyed by the grid name, grid maps by "grid.map". All numeric types are
// widened to float64.
func DecodeDods(body []byte) (*DDS, map[string][]float64, error) {
	idx := bytes.Index(body, dataMarker)
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: no data section", ErrMalformedResponse)
	}
	dds, err := ParseDDS(string(body[:idx]))
	if err != nil {
		return nil, nil, err
	}

	r := bytes.NewReader(body[idx+len(dataMarker):])
	values := make(map[string][]float64, len(dds.Vars))
	for _, v := range dds.Vars {
		if v.Array != nil {
			data, err := decodeArray(r, *v.Array)
			if err != nil {
				return nil, nil, err
			}
			values[v.Array.Name] = data
			continue
		}
		data, err := decodeArray(r, v.Grid.Array)
		if err != nil {
			return nil, nil, err
		}
		values[v.Grid.Name] = data
		for _, m := range v.Grid.Maps {
			data, err := decodeArray(r, m)
			if err != nil {
				return nil, nil, err
			}
			values[v.Grid.Name+"."+m.Name] = data
		}
	}
	return dds, values, nil
}

// decodeArray reads one XDR-encoded array. Arrays are preceded by their
// element count sent twice as big-endian uint32; scalars have no counts.
// 16-bit integers travel widened to 32 bits, bytes are packed and padded to
// a four-byte boundary.
func decodeArray(r *bytes.Reader, a Array) ([]float64, error) {
	n := a.Len()
	if len(a.Dims) > 0 {
		count, err := readCount(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		verify, err := readCount(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		if count != verify || count != n {
			return nil, fmt.Errorf("%w: %s count %d/%d, descriptor says %d",
				ErrMalformedResponse, a.Name, count, verify, n)
		}
	}

	values := make([]float64, n)
	switch a.Type {
	case "Float64":
		buf := make([]byte, 8*n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(a.Name, err)
		}
		for i := range values {
			values[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[8*i:]))
		}
	case "Float32":
		buf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(a.Name, err)
		}
		for i := range values {
			values[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(buf[4*i:])))
		}
	case "Int32", "Int16":
		buf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(a.Name, err)
		}
		for i := range values {
			values[i] = float64(int32(binary.BigEndian.Uint32(buf[4*i:])))
		}
	case "UInt32", "UInt16":
		buf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(a.Name, err)
		}
		for i := range values {
			values[i] = float64(binary.BigEndian.Uint32(buf[4*i:]))
		}
	case "Byte":
		padded := (n + 3) &^ 3
		buf := make([]byte, padded)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, shortRead(a.Name, err)
		}
		for i := range values {
			values[i] = float64(buf[i])
		}
	default:
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedType, a.Type, a.Name)
	}
	return values, nil
}

func readCount(r *bytes.Reader) (int, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return 0, fmt.Errorf("%w: truncated array count", ErrMalformedResponse)
	}
	return int(count), nil
}

func shortRead(name string, err error) error {
	return fmt.Errorf("%w: %s data truncated: %v", ErrMalformedResponse, name, err)
}
