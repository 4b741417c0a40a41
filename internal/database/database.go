package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

const (
	EventArrived = "arrived"
	EventLeft    = "left"
)

type Event struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceMAC  string    `json:"device_mac"`
	DeviceName string    `json:"device_name"`
	Person     string    `json:"person,omitempty"`
	Event      string    `json:"event"` // "arrived", "left"
	Message    string    `json:"message"`
}

func Initialize(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		device_mac TEXT NOT NULL,
		device_name TEXT,
		person TEXT,
		event TEXT NOT NULL,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_device_mac ON events(device_mac);

	CREATE TABLE IF NOT EXISTS device_states (
		mac TEXT PRIMARY KEY,
		name TEXT,
		last_seen DATETIME,
		is_online BOOLEAN DEFAULT FALSE
	);
	`

	_, err := db.Exec(schema)
	return err
}

func (db *DB) LogEvent(entry *Event) error {
	query := `
		INSERT INTO events (device_mac, device_name, person, event, message)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, entry.DeviceMAC, entry.DeviceName, entry.Person, entry.Event, entry.Message)
	return err
}

func (db *DB) GetEvents(limit int, offset int) ([]Event, error) {
	query := `
		SELECT id, timestamp, device_mac, device_name, COALESCE(person, ''), event, message
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return db.queryEvents(query, limit, offset)
}

func (db *DB) GetRecentEvents(hours int) ([]Event, error) {
	query := `
		SELECT id, timestamp, device_mac, device_name, COALESCE(person, ''), event, message
		FROM events
		WHERE timestamp > datetime('now', '-' || ? || ' hours')
		ORDER BY timestamp DESC, id DESC
	`
	return db.queryEvents(query, hours)
}

func (db *DB) GetEventsByDevice(mac string, limit int) ([]Event, error) {
	query := `
		SELECT id, timestamp, device_mac, device_name, COALESCE(person, ''), event, message
		FROM events
		WHERE device_mac = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	return db.queryEvents(query, mac, limit)
}

func (db *DB) queryEvents(query string, args ...interface{}) ([]Event, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		err := rows.Scan(&e.ID, &e.Timestamp, &e.DeviceMAC, &e.DeviceName, &e.Person, &e.Event, &e.Message)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (db *DB) UpdateDeviceState(mac, name string, isOnline bool) error {
	query := `
		INSERT INTO device_states (mac, name, last_seen, is_online)
		VALUES (?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT(mac) DO UPDATE SET
			name = excluded.name,
			last_seen = excluded.last_seen,
			is_online = excluded.is_online
	`
	_, err := db.Exec(query, mac, name, isOnline)
	return err
}

func (db *DB) GetDeviceState(mac string) (name string, lastSeen time.Time, isOnline bool, err error) {
	query := `SELECT name, last_seen, is_online FROM device_states WHERE mac = ?`
	err = db.QueryRow(query, mac).Scan(&name, &lastSeen, &isOnline)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	return
}

func (db *DB) GetOnlineDevices() (map[string]bool, error) {
	query := `SELECT mac FROM device_states WHERE is_online = true`
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	online := make(map[string]bool)
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			return nil, err
		}
		online[mac] = true
	}

	return online, rows.Err()
}

// DeleteOldEvents deletes events older than the specified number of days
func (db *DB) DeleteOldEvents(daysToKeep int) (int64, error) {
	query := `DELETE FROM events WHERE timestamp < datetime('now', '-' || ? || ' days')`
	result, err := db.Exec(query, daysToKeep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
