package model

// WebSocket message types
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeClosed   = "closed"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage carries the full aggregate state of a batch
type WSSnapshotMessage struct {
	Type     string        `json:"type"`
	BatchID  string        `json:"batchId"`
	Snapshot BatchSnapshot `json:"snapshot"`
}

// WSClosedMessage tells viewers the batch view was closed
type WSClosedMessage struct {
	Type    string `json:"type"`
	BatchID string `json:"batchId"`
}
