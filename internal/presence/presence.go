// Package presence answers "who is home" by matching the router's online
// clients against the configured persons and their devices, and tracks
// arrivals and departures between polls.
package presence

import (
	"whoshome/internal/config"
	"whoshome/internal/router"
)

// WhosHome returns the persons with at least one device currently online.
// Devices are matched by client display name.
func WhosHome(persons []config.PersonConfig, online []router.Client) []config.PersonConfig {
	var home []config.PersonConfig
	for _, p := range persons {
		if anyDeviceOnline(p, online) {
			home = append(home, p)
		}
	}
	return home
}

func anyDeviceOnline(p config.PersonConfig, online []router.Client) bool {
	for _, device := range p.Devices {
		for _, c := range online {
			if c.Name == device {
				return true
			}
		}
	}
	return false
}

// ChangeKind discriminates arrivals from departures.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

func (k ChangeKind) String() string {
	if k == Added {
		return "added"
	}
	return "removed"
}

// Change is one difference between two observations.
type Change struct {
	Kind   ChangeKind
	Client router.Client
}

// Changes diffs two client lists by MAC, additions first. Order within the
// inputs does not matter; duplicates count once.
func Changes(before, after []router.Client) []Change {
	beforeSet := bySet(before)
	afterSet := bySet(after)

	var changes []Change
	for _, c := range after {
		if _, ok := beforeSet[c.MAC]; !ok {
			changes = append(changes, Change{Kind: Added, Client: c})
			beforeSet[c.MAC] = c // suppress duplicates
		}
	}
	for _, c := range before {
		if _, ok := afterSet[c.MAC]; !ok {
			changes = append(changes, Change{Kind: Removed, Client: c})
			afterSet[c.MAC] = c
		}
	}
	return changes
}

func bySet(clients []router.Client) map[string]router.Client {
	set := make(map[string]router.Client, len(clients))
	for _, c := range clients {
		set[c.MAC] = c
	}
	return set
}

// Owner returns the configured person owning the device name, if any.
func Owner(persons []config.PersonConfig, deviceName string) (string, bool) {
	for _, p := range persons {
		for _, d := range p.Devices {
			if d == deviceName {
				return p.Name, true
			}
		}
	}
	return "", false
}
