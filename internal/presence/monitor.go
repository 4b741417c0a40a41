package presence

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whoshome/internal/config"
	"whoshome/internal/database"
	"whoshome/internal/router"
)

// Monitor polls the router for online clients, diffs consecutive
// observations and records arrivals and departures. The router client is
// shared with other callers; the monitor owns no session state of its own.
type Monitor struct {
	Router   router.Router
	DB       *database.DB // nil disables persistence
	Logger   *logrus.Logger
	Persons  []config.PersonConfig
	Interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	seeded  bool
	last    []router.Client
}

// Start launches the polling loop. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.Logger.Infof("Starting presence monitoring (interval %s)", m.Interval)
	go m.loop()
}

// Stop halts the polling loop and waits for the current poll to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	m.Logger.Info("Presence monitoring stopped")
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.Poll()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll performs one observation cycle. Exported so one-shot callers and
// tests can drive the monitor without the ticker.
func (m *Monitor) Poll() {
	online, err := m.Router.OnlineClients()
	if err != nil {
		m.Logger.Errorf("Polling online clients failed: %v", err)
		return
	}

	m.mu.Lock()
	last := m.last
	seeded := m.seeded
	m.last = online
	m.seeded = true
	m.mu.Unlock()

	if !seeded {
		// First observation: establish the baseline without reporting
		// everyone present as an arrival.
		m.Logger.Debugf("Seeded presence baseline with %d online clients", len(online))
		m.recordStates(online)
		return
	}

	for _, change := range Changes(last, online) {
		m.recordChange(change)
	}
	m.recordStates(online)
}

func (m *Monitor) recordChange(change Change) {
	event := database.EventArrived
	verb := "arrived"
	if change.Kind == Removed {
		event = database.EventLeft
		verb = "left"
	}

	person, _ := Owner(m.Persons, change.Client.Name)
	if person != "" {
		m.Logger.Infof("%s %s (%s, %s)", person, verb, change.Client.Name, change.Client.MAC)
	} else {
		m.Logger.Infof("Device %s (%s) %s", change.Client.Name, change.Client.MAC, verb)
	}

	if m.DB == nil {
		return
	}
	err := m.DB.LogEvent(&database.Event{
		DeviceMAC:  change.Client.MAC,
		DeviceName: change.Client.Name,
		Person:     person,
		Event:      event,
		Message:    change.Client.Name + " " + verb,
	})
	if err != nil {
		m.Logger.Errorf("Recording %s event for %s failed: %v", event, change.Client.MAC, err)
	}

	if change.Kind == Removed {
		if err := m.DB.UpdateDeviceState(change.Client.MAC, change.Client.Name, false); err != nil {
			m.Logger.Errorf("Updating state for %s failed: %v", change.Client.MAC, err)
		}
	}
}

func (m *Monitor) recordStates(online []router.Client) {
	if m.DB == nil {
		return
	}
	for _, c := range online {
		if err := m.DB.UpdateDeviceState(c.MAC, c.Name, true); err != nil {
			m.Logger.Errorf("Updating state for %s failed: %v", c.MAC, err)
		}
	}
}
