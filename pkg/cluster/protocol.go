package cluster

import "github.com/pyferris/pyferris/pkg/types"

// Message types for the line-delimited JSON wire protocol (section 6).
const (
	TypeJoinRequest  = "JoinRequest"
	TypeJoinResponse = "JoinResponse"
	TypeHeartbeat    = "Heartbeat"
	TypeHeartbeatAck = "HeartbeatAck"
	TypeLeaveNotice  = "LeaveNotice"
	TypeAck          = "Ack"
)

// envelope is the common wrapper every wire message carries, so a reader
// can dispatch on Type before decoding the rest of the payload.
type envelope struct {
	Type string `json:"type"`
}

// JoinRequest is sent by a worker node joining the cluster.
type JoinRequest struct {
	Type         string             `json:"type"`
	NodeID       string             `json:"node_id"`
	Address      string             `json:"address"`
	Capabilities types.Capabilities `json:"capabilities"`
}

// JoinResponse answers a JoinRequest with the current peer list and
// heartbeat cadence.
type JoinResponse struct {
	Type              string              `json:"type"`
	Peers             []*types.ClusterNode `json:"peers"`
	Role              string              `json:"role"`
	HeartbeatInterval float64             `json:"heartbeat_interval_seconds"`
}

// Heartbeat reports a node's current load.
type Heartbeat struct {
	Type      string  `json:"type"`
	NodeID    string  `json:"node_id"`
	Load      float64 `json:"load"`
	Timestamp int64   `json:"timestamp"`
}

// HeartbeatAck acknowledges a Heartbeat.
type HeartbeatAck struct {
	Type string `json:"type"`
}

// LeaveNotice tells the coordinator a node is leaving voluntarily.
type LeaveNotice struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
}

// Ack is a generic acknowledgement for LeaveNotice.
type Ack struct {
	Type string `json:"type"`
}
