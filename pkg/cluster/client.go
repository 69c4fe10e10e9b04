package cluster

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pyferris/pyferris/internal/config"
	"github.com/pyferris/pyferris/pkg/types"
)

// Client is a worker-side connection to the coordinator: it joins once,
// then sends periodic heartbeats until Leave.
type Client struct {
	cfg          config.ClusterConfig
	log          *slog.Logger
	nodeID       string
	address      string
	capabilities types.Capabilities

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient builds a worker client for the given node identity.
func NewClient(cfg config.ClusterConfig, log *slog.Logger, nodeID, address string, capabilities types.Capabilities) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:          cfg,
		log:          log,
		nodeID:       nodeID,
		address:      address,
		capabilities: capabilities,
		stopCh:       make(chan struct{}),
	}
}

// Join dials the coordinator, sends a JoinRequest, and returns the
// coordinator's JoinResponse. On success it also starts a background
// heartbeat loop at the interval the coordinator assigned.
func (c *Client) Join(coordinatorAddr string) (*JoinResponse, error) {
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("tcp", coordinatorAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("cluster: dial %s: %w", coordinatorAddr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.mu.Unlock()

	req := JoinRequest{
		Type:         TypeJoinRequest,
		NodeID:       c.nodeID,
		Address:      c.address,
		Capabilities: c.capabilities,
	}
	if err := c.send(req); err != nil {
		conn.Close()
		return nil, err
	}

	var resp JoinResponse
	if err := c.recv(&resp); err != nil {
		conn.Close()
		return nil, err
	}

	interval := time.Duration(resp.HeartbeatInterval * float64(time.Second))
	if interval <= 0 {
		interval = c.cfg.HeartbeatInterval
	}
	c.wg.Add(1)
	go c.heartbeatLoop(interval)

	return &resp, nil
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	defer c.wg.Done()
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			hb := Heartbeat{Type: TypeHeartbeat, NodeID: c.nodeID, Load: 0, Timestamp: time.Now().Unix()}
			if err := c.send(hb); err != nil {
				c.log.Warn("cluster: heartbeat send failed", "error", err)
				continue
			}
			var ack HeartbeatAck
			if err := c.recv(&ack); err != nil {
				c.log.Warn("cluster: heartbeat ack failed", "error", err)
			}
		}
	}
}

// ReportLoad sends load to the coordinator immediately as an out-of-band
// heartbeat. The periodic heartbeat loop always reports a load of 0, so
// the next tick overwrites the reported value.
func (c *Client) ReportLoad(load float64) error {
	return c.send(Heartbeat{Type: TypeHeartbeat, NodeID: c.nodeID, Load: load, Timestamp: time.Now().Unix()})
}

// Leave sends a LeaveNotice and stops the heartbeat loop.
func (c *Client) Leave() error {
	err := c.send(LeaveNotice{Type: TypeLeaveNotice, NodeID: c.nodeID})
	close(c.stopCh)
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	return err
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("cluster: client not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = conn.Write(payload)
	return err
}

func (c *Client) recv(v any) error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return fmt.Errorf("cluster: client not connected")
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return err
	}
	return json.Unmarshal(line, v)
}
