package ws

import "time"

// ConnInfo describes who is on the other end of a connection.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
