package v1

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/queue"
	"github.com/axeforge/bitaxe-core/internal/result"
)

// Retry thresholds from original_source/main/tasks/stratum_task.c:
// three failed connection attempts against one pool switch to the
// other configured pool (primary<->fallback) and reset share stats;
// five consecutive *critical* failures (socket creation itself
// failing, not just connect/handshake) trigger a reboot callback.
const (
	maxRetryAttempts         = 3
	maxCriticalRetryAttempts = 5
)

// RebootFunc is called after maxCriticalRetryAttempts consecutive
// socket-creation failures, mirroring the firmware's esp_restart().
type RebootFunc func()

// Stats is the per-connection share/rejection counters the original
// resets on every pool switch.
type Stats struct {
	Accepted  uint64
	Rejected  uint64
	Submitted uint64
}

// Client is the Stratum V1 pool client (C5): it holds a primary and
// fallback PoolConfig, maintains a TCP connection to whichever is
// active, and feeds parsed mining.notify jobs to notifications while
// pushing difficulty/version-mask updates into builder.
type Client struct {
	primary   PoolConfig
	fallback  PoolConfig
	activeIdx int // 0 = primary, 1 = fallback

	notifications *queue.Queue[any]
	builder       *job.Builder
	loggers       *logging.Loggers
	reboot        RebootFunc

	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer

	nextID          int32
	extranonce1     []byte
	extranonce2Size int

	stats     Stats
	histogram *rejectionHistogram

	authorizeID int
	configureID int
	subscribeID int

	retryAttempts         int
	criticalRetryAttempts int
}

// NewClient builds a Client. notifications receives *job.V1Notification
// values for the job builder to consume; builder receives difficulty
// and version-mask pushes. reboot may be nil (tests / bench mode).
func NewClient(primary, fallback PoolConfig, notifications *queue.Queue[any], builder *job.Builder, loggers *logging.Loggers, reboot RebootFunc) *Client {
	return &Client{
		primary:       primary,
		fallback:      fallback,
		notifications: notifications,
		builder:       builder,
		loggers:       loggers,
		reboot:        reboot,
		histogram:     newRejectionHistogram(),
	}
}

// Stats returns a snapshot of the current connection's share counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Histogram returns the top rejection reasons seen so far, longest
// message first, per spec's share-rejection histogram (at most 10
// entries).
func (c *Client) Histogram() []RejectionEntry {
	return c.histogram.Top(10)
}

func (c *Client) activePool() PoolConfig {
	if c.activeIdx == 1 {
		return c.fallback
	}
	return c.primary
}

// Run drives the connect/dispatch/reconnect loop until stop closes.
// It never returns early on its own: a failed or dropped connection
// always leads to a retry (with the pool-switch and reboot escalation
// original_source/main/tasks/stratum_task.c implements), exactly as
// the firmware task is expected to run forever.
func (c *Client) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := c.runOnce(stop)
		if err != nil {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelError, "stratum v1: %v", err)
		}
		c.handleConnectionFailure(isCriticalDialErr(err))

		select {
		case <-stop:
			return
		case <-time.After(time.Second):
		}
	}
}

// runOnce dials the active pool, runs the setup sequence, then reads
// and dispatches messages until the connection drops or stop closes.
// A nil return after a clean dispatch loop means the peer closed the
// connection normally (still treated as a failure by the caller's
// retry counting, matching the original: any disconnect counts).
func (c *Client) runOnce(stop <-chan struct{}) error {
	pool := c.activePool()
	if !pool.configured() {
		return fmt.Errorf("pool %d not configured", c.activeIdx)
	}

	conn, err := c.dial(pool)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.w = bufio.NewWriter(conn)
	c.mu.Unlock()

	c.retryAttempts = 0
	c.criticalRetryAttempts = 0

	if err := c.setup(pool); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		c.dispatch(scanner.Bytes())
	}
	return scanner.Err()
}

func (c *Client) dial(pool PoolConfig) (net.Conn, error) {
	addr := net.JoinHostPort(pool.URL, strconv.Itoa(int(pool.Port)))
	raw, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if !pool.TLS {
		return raw, nil
	}
	tlsConn := tls.Client(raw, &tls.Config{ServerName: pool.URL})
	if err := tlsConn.Handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

// setup runs the per-connection mining.configure/subscribe/authorize
// sequence stratum_task.c issues immediately after connect, ids 1/2/3.
func (c *Client) setup(pool PoolConfig) error {
	c.configureID = 1
	if err := c.send(newRequest(c.configureID, "mining.configure",
		[]string{"version-rolling"},
		map[string]any{"version-rolling.mask": "1fffe000"})); err != nil {
		return err
	}

	c.subscribeID = 2
	if err := c.send(newRequest(c.subscribeID, "mining.subscribe", "bitaxe-core")); err != nil {
		return err
	}

	c.authorizeID = 3
	return c.send(newRequest(c.authorizeID, "mining.authorize", pool.User, pool.Pass))
}

func (c *Client) send(r request) error {
	line, err := marshalLine(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := c.w.Write(line); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Client) nextSendID() int {
	return int(atomic.AddInt32(&c.nextID, 1)) + 100
}

// dispatch routes one newline-delimited JSON-RPC line through the
// message table original_source/main/tasks/stratum_task.c implements.
func (c *Client) dispatch(line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v1: bad line: %v", err)
		return
	}

	switch {
	case env.Method == "mining.notify":
		c.handleNotify(env.Params)
	case env.Method == "mining.set_difficulty":
		c.handleSetDifficulty(env.Params)
	case env.Method == "mining.set_extranonce":
		c.handleSetExtranonce(env.Params)
	case env.Method == "mining.set_version_mask":
		c.handleSetVersionMask(env.Params)
	case env.Method == "client.reconnect":
		c.handleReconnect()
	case env.ID != nil && *env.ID == c.configureID:
		c.handleConfigureResult(env.Result)
	case env.ID != nil && *env.ID == c.subscribeID:
		c.handleSubscribeResult(env.Result)
	case env.ID != nil && *env.ID == c.authorizeID:
		c.handleAuthorizeResult(env.Result, env.Error)
	case env.ID != nil:
		c.handleSubmitResult(env.Result, env.Error)
	}
}

func (c *Client) handleNotify(params []byte) {
	n, err := decodeNotify(params, c.extranonce1, c.extranonce2Size)
	if err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: %v", err)
		return
	}
	if err := c.notifications.DropOldestAndEnqueue(any(n)); err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: enqueue notify: %v", err)
	}
}

func (c *Client) handleSetDifficulty(params []byte) {
	d, err := decodeSetDifficulty(params)
	if err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: %v", err)
		return
	}
	c.builder.SetDifficulty(d)
}

func (c *Client) handleSetExtranonce(params []byte) {
	e1, size, err := decodeSetExtranonce(params)
	if err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: %v", err)
		return
	}
	c.applyExtranonce(e1, size)
}

func (c *Client) handleSetVersionMask(params []byte) {
	mask, err := decodeSetVersionMask(params)
	if err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: %v", err)
		return
	}
	c.builder.SetVersionMask(mask)
}

func (c *Client) handleReconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) handleConfigureResult(raw []byte) {
	mask, ok := decodeConfigureResult(raw)
	if !ok {
		return
	}
	c.builder.SetVersionMask(mask)
}

func (c *Client) handleSubscribeResult(raw []byte) {
	sub, err := decodeSubscribeResult(raw)
	if err != nil {
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: %v", err)
		return
	}
	// clamp extranonce_2_len per stratum_task.c's MAX_EXTRANONCE_2_LEN.
	if sub.Extranonce2Size > 32 {
		sub.Extranonce2Size = 32
	}
	c.applyExtranonce(sub.Extranonce1, sub.Extranonce2Size)
}

func (c *Client) applyExtranonce(e1 []byte, size int) {
	c.mu.Lock()
	c.extranonce1 = e1
	c.extranonce2Size = size
	c.mu.Unlock()
}

// handleAuthorizeResult is stratum_task.c's STRATUM_RESULT_SETUP: on a
// successful authorize, send suggest_difficulty and, if configured,
// subscribe to extranonce changes.
func (c *Client) handleAuthorizeResult(res, errField []byte) {
	if len(errField) > 0 && string(errField) != "null" {
		c.loggers.Message(logging.CategoryMining, btclog.LevelError, "stratum v1: authorize rejected: %s", errorMessage(errField))
		return
	}

	pool := c.activePool()
	if pool.SuggestedDifficulty > 0 {
		c.send(newRequest(c.nextSendID(), "mining.suggest_difficulty", pool.SuggestedDifficulty))
	}
	if pool.ExtranonceSubscribe {
		c.send(newRequest(c.nextSendID(), "mining.extranonce.subscribe"))
	}
}

// handleSubmitResult is stratum_task.c's generic STRATUM_RESULT:
// accepted/rejected share bookkeeping and the rejection histogram.
func (c *Client) handleSubmitResult(res, errField []byte) {
	accepted := len(errField) == 0 || string(errField) == "null"
	if len(res) > 0 && string(res) == "false" {
		accepted = false
	}

	c.mu.Lock()
	if accepted {
		c.stats.Accepted++
	} else {
		c.stats.Rejected++
	}
	c.mu.Unlock()

	if !accepted {
		reason := errorMessage(errField)
		c.histogram.Record(reason)
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v1: share rejected: %s", reason)
	}
}

// SubmitShare implements result.Submitter, sending a mining.submit
// request for shares the result task decides meet pool difficulty.
func (c *Client) SubmitShare(share result.Share) error {
	pool := c.activePool()
	id := c.nextSendID()
	c.mu.Lock()
	c.stats.Submitted++
	c.mu.Unlock()
	err := c.send(newRequest(id, "mining.submit",
		pool.User,
		share.PoolJobID,
		share.Extranonce2,
		fmt.Sprintf("%08x", share.NTime),
		fmt.Sprintf("%08x", share.Nonce),
		fmt.Sprintf("%08x", share.Version),
	))
	if err != nil {
		// spec §4.5 step 5: a submit socket error closes the pool
		// connection so Run's read loop unblocks and reconnects,
		// matching asic_result_task.c's stratum_close_connection call
		// on a failed mining.submit write.
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	}
	return err
}

// handleConnectionFailure implements stratum_task.c's retry ladder: a
// regular dial/setup failure counts toward maxRetryAttempts, after
// which the client switches pools and resets its share stats;
// critical (socket-level) failures count separately and, past
// maxCriticalRetryAttempts, trigger reboot.
func (c *Client) handleConnectionFailure(critical bool) {
	if critical {
		c.criticalRetryAttempts++
		if c.criticalRetryAttempts >= maxCriticalRetryAttempts {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelCritical, "stratum v1: %d consecutive critical failures, rebooting", c.criticalRetryAttempts)
			if c.reboot != nil {
				c.reboot()
			}
			c.criticalRetryAttempts = 0
		}
		return
	}

	c.retryAttempts++
	if c.retryAttempts < maxRetryAttempts {
		return
	}
	c.retryAttempts = 0

	if c.fallback.configured() {
		c.mu.Lock()
		if c.activeIdx == 0 {
			c.activeIdx = 1
		} else {
			c.activeIdx = 0
		}
		c.stats = Stats{}
		c.mu.Unlock()
		c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v1: switching to pool index %d", c.activeIdx)
	}
}

func isCriticalDialErr(err error) bool {
	var sysErr *os.SyscallError
	return errors.As(err, &sysErr) && sysErr.Syscall == "socket"
}
