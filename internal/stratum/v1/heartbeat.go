package v1

import (
	"bufio"
	"strings"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/logging"
)

// heartbeatInterval is how often the heartbeat probes the primary
// pool while running on the fallback, per
// original_source/main/tasks/stratum_task.c's periodic primary-check.
const heartbeatInterval = 5 * time.Minute

// RunPrimaryHeartbeat periodically probes the primary pool while the
// client is connected to its fallback: it dials, runs the same
// subscribe+authorize handshake, and does one blind read looking for a
// mining.notify. Seeing one means the primary is healthy again, so it
// closes the client's current (fallback) connection, forcing Run's
// retry loop to dial again — which always starts at pool index 0
// (stratum_task.c resets active_pool_idx to the default on a
// reconnect triggered this way). Blocks until stop closes.
func (c *Client) RunPrimaryHeartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		onFallback := c.activeIdx == 1
		c.mu.Unlock()
		if !onFallback || !c.primary.configured() {
			continue
		}

		if c.probePrimary() {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelInfo, "stratum v1: primary pool healthy again, forcing reconnect")
			c.mu.Lock()
			c.activeIdx = 0
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
		}
	}
}

// probePrimary makes one short-lived connection to the primary pool
// and reports whether a mining.notify was seen in the first handful of
// lines it sends back, mirroring stratum_task.c's blind single-recv
// check after subscribe+authorize.
func (c *Client) probePrimary() bool {
	conn, err := c.dial(c.primary)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))

	w := bufio.NewWriter(conn)
	lines := []request{
		newRequest(1, "mining.subscribe", "bitaxe-core"),
		newRequest(2, "mining.authorize", c.primary.User, c.primary.Pass),
	}
	for _, r := range lines {
		line, err := marshalLine(r)
		if err != nil {
			return false
		}
		if _, err := w.Write(line); err != nil {
			return false
		}
	}
	if err := w.Flush(); err != nil {
		return false
	}

	scanner := bufio.NewScanner(conn)
	for i := 0; i < 5 && scanner.Scan(); i++ {
		if strings.Contains(scanner.Text(), "mining.notify") {
			return true
		}
	}
	return false
}
