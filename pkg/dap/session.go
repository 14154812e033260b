package dap

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"
)

const (
	// DefaultAuthHost is the Earthdata Login host that data servers redirect
	// through on the first request of a session.
	DefaultAuthHost = "urs.earthdata.nasa.gov"

	// DefaultTimeout bounds a single DAP request including the login redirects.
	DefaultTimeout = 60 * time.Second

	maxRedirects = 10
)

// Credentials is an Earthdata Login username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// CredentialsFromNetrc reads the login and password for machine from a netrc
// file. A "default" entry matches any machine. ErrMissingCredentials is
// returned when the file is unreadable or holds no matching entry.
func CredentialsFromNetrc(path, machine string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	var creds Credentials
	matched := false
	tokens := strings.Fields(string(data))
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "machine":
			if i+1 >= len(tokens) {
				break
			}
			i++
			if matched && creds.Valid() {
				return creds, nil
			}
			matched = tokens[i] == machine
			if matched {
				creds = Credentials{}
			}
		case "default":
			if matched && creds.Valid() {
				return creds, nil
			}
			matched = true
			creds = Credentials{}
		case "login":
			if matched && i+1 < len(tokens) {
				i++
				creds.Username = tokens[i]
			}
		case "password":
			if matched && i+1 < len(tokens) {
				i++
				creds.Password = tokens[i]
			}
		}
	}
	if matched && creds.Valid() {
		return creds, nil
	}
	return Credentials{}, fmt.Errorf("%w: no netrc entry for %q", ErrMissingCredentials, machine)
}

// NewSession builds an http.Client that carries the Earthdata session cookie
// and presents Basic auth only when a redirect lands on authHost. Servers
// bounce the first request through the login host, then hand back a cookie
// that authenticates the rest of the session.
func NewSession(creds Credentials, authHost string, timeout time.Duration) (*http.Client, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}
	if authHost == "" {
		authHost = DefaultAuthHost
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("dap: cookie jar: %w", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("dap: stopped after %d redirects", maxRedirects)
			}
			if req.URL.Host == authHost {
				req.SetBasicAuth(creds.Username, creds.Password)
			}
			return nil
		},
	}, nil
}
