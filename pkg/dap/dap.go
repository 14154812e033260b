// Package dap is a small DAP2 (OPeNDAP) client for NASA GES DISC data
// servers. It covers the slice of the protocol needed to read gridded NetCDF
// products over plain HTTP: dataset descriptors (.dds), attribute listings
// (.das) and constrained binary data requests (.dods), with Earthdata Login
// handled through the redirect flow the servers use.
package dap

import "errors"

var (
	// ErrMissingCredentials is returned when no Earthdata login is available.
	ErrMissingCredentials = errors.New("dap: missing Earthdata credentials")

	// ErrRequestFailed is returned when the server answers with a non-2xx status.
	ErrRequestFailed = errors.New("dap: request failed")

	// ErrMalformedResponse is returned when a DDS, DAS or data body cannot be parsed.
	ErrMalformedResponse = errors.New("dap: malformed response")

	// ErrUnsupportedType is returned for DAP types this client does not decode.
	ErrUnsupportedType = errors.New("dap: unsupported type")
)
