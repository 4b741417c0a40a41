package creds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no credentials are configured for a host.
var ErrNotFound = errors.New("no credentials found")

// Credentials is a username/password pair for one router host.
type Credentials struct {
	Username string
	Password string
}

// Provider looks up credentials by host identifier.
type Provider interface {
	Lookup(host string) (Credentials, error)
}

// Static always returns the same credentials, regardless of host.
type Static struct {
	Username string
	Password string
}

func (s Static) Lookup(string) (Credentials, error) {
	if s.Username == "" || s.Password == "" {
		return Credentials{}, ErrNotFound
	}
	return Credentials{Username: s.Username, Password: s.Password}, nil
}

// NetrcProvider reads credentials from a netrc file, keyed by machine name.
// A "default" entry matches any host without its own machine entry.
type NetrcProvider struct {
	// Path of the netrc file. Empty means ~/.netrc.
	Path string
}

func (p NetrcProvider) Lookup(host string) (Credentials, error) {
	path := p.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Credentials{}, fmt.Errorf("finding home dir: %w", err)
		}
		path = filepath.Join(home, ".netrc")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading %s: %w", path, err)
	}

	machines, err := parseNetrc(string(data))
	if err != nil {
		return Credentials{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	entry, ok := machines[host]
	if !ok {
		entry, ok = machines["default"]
	}
	if !ok {
		return Credentials{}, fmt.Errorf("machine %s: %w", host, ErrNotFound)
	}
	if entry.Username == "" || entry.Password == "" {
		return Credentials{}, fmt.Errorf("machine %s has no login/password: %w", host, ErrNotFound)
	}
	return entry, nil
}

// parseNetrc handles the token pairs this tool cares about: machine, login,
// password and the bare "default" keyword. Unknown tokens (account, macdef
// bodies aside) are skipped with their value.
func parseNetrc(content string) (map[string]Credentials, error) {
	machines := make(map[string]Credentials)
	fields := strings.Fields(content)

	var current string
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "machine":
			i++
			if i >= len(fields) {
				return nil, errors.New("machine keyword without a name")
			}
			current = fields[i]
			machines[current] = Credentials{}
		case "default":
			current = "default"
			machines[current] = Credentials{}
		case "login":
			i++
			if i >= len(fields) || current == "" {
				return nil, errors.New("login keyword outside a machine entry")
			}
			entry := machines[current]
			entry.Username = fields[i]
			machines[current] = entry
		case "password":
			i++
			if i >= len(fields) || current == "" {
				return nil, errors.New("password keyword outside a machine entry")
			}
			entry := machines[current]
			entry.Password = fields[i]
			machines[current] = entry
		default:
			// account, port and friends: skip the keyword's value
			i++
		}
	}

	return machines, nil
}
