package domain

import "time"

// TimestampKind records where a message timestamp came from.
type TimestampKind uint8

const (
	// TimeUnknown means neither the server nor the client supplied a time;
	// the wall clock at ingestion stands in.
	TimeUnknown TimestampKind = iota
	// TimeClient is the sender's advisory clock.
	TimeClient
	// TimeServer is the authoritative store-assigned time.
	TimeServer
)

// Timestamp is a resolved message time. It is built once when a message is
// ingested and never re-interpreted downstream.
type Timestamp struct {
	kind   TimestampKind
	millis int64
}

// ResolveTimestamp picks the effective time for a message: the server time
// when assigned, else the client time, else now.
func ResolveTimestamp(serverMs, clientMs int64, now time.Time) Timestamp {
	switch {
	case serverMs > 0:
		return Timestamp{kind: TimeServer, millis: serverMs}
	case clientMs > 0:
		return Timestamp{kind: TimeClient, millis: clientMs}
	default:
		return Timestamp{kind: TimeUnknown, millis: now.UnixMilli()}
	}
}

// ServerTime builds a server-provenance timestamp.
func ServerTime(ms int64) Timestamp { return Timestamp{kind: TimeServer, millis: ms} }

// ClientTime builds a client-provenance timestamp.
func ClientTime(ms int64) Timestamp { return Timestamp{kind: TimeClient, millis: ms} }

// Kind reports the timestamp's provenance.
func (t Timestamp) Kind() TimestampKind { return t.kind }

// Millis returns the effective time in Unix milliseconds.
func (t Timestamp) Millis() int64 { return t.millis }
