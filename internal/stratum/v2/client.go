package v2

import (
	"fmt"
	"math/big"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/internal/logging"
	"github.com/axeforge/bitaxe-core/internal/noise"
	"github.com/axeforge/bitaxe-core/internal/queue"
	"github.com/axeforge/bitaxe-core/internal/result"
	"github.com/axeforge/bitaxe-core/internal/stratum/v1"
	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// Stats holds share accounting for the SV2 path, mirroring the V1
// client's own counters (spec §4.6).
type Stats struct {
	Submitted uint64
	Accepted  uint64
	Rejected  uint64
}

// maxConsecutiveFailures is spec §4.7's "after three consecutive SV2
// connection failures" fallback threshold.
const maxConsecutiveFailures = 3

// pendingRingSize is the 8-slot future-job ring spec §4.7 describes,
// indexed by job_id & 7.
const pendingRingSize = 8

// FallbackFunc is invoked once the SV2 client gives up permanently and
// switches the process to V1 (spec §4.7/S5). It should construct and
// run a v1.Client against fallbackPool and then return; Client.Run
// returns once this call returns.
type FallbackFunc func(fallbackPool v1.PoolConfig, notifications *queue.Queue[any])

// Client is the Stratum V2 pool client (C6): it speaks the Noise_NX
// handshake, opens one standard mining channel, feeds parsed jobs into
// the shared notification queue, and submits shares for the result
// task via SubmitShare (implementing result.Submitter).
type Client struct {
	pool         PoolConfig
	fallbackPool v1.PoolConfig
	fallback     FallbackFunc

	notifications *queue.Queue[any]
	builder       *job.Builder
	loggers       *logging.Loggers

	mu         sync.Mutex
	conn       net.Conn
	transport  *transport
	channelID  uint32
	nextSeq    uint32
	latestHash *SetNewPrevHash
	pending    [pendingRingSize]*NewMiningJob

	stats Stats

	consecutiveFailures int
}

// NewClient builds a Client. fallback is invoked after three
// consecutive connection failures if fallbackPool is configured; it
// may be nil, in which case the client simply keeps retrying the SV2
// pool forever.
func NewClient(pool PoolConfig, fallbackPool v1.PoolConfig, fallback FallbackFunc, notifications *queue.Queue[any], builder *job.Builder, loggers *logging.Loggers) *Client {
	return &Client{
		pool:          pool,
		fallbackPool:  fallbackPool,
		fallback:      fallback,
		notifications: notifications,
		builder:       builder,
		loggers:       loggers,
	}
}

// Run dials and services the SV2 connection until stop fires or the
// client permanently falls back to V1 (spec §4.7/S5).
func (c *Client) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := c.runOnce(stop)
		if err == nil {
			return // stop fired mid-session
		}
		c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v2: %v", err)

		c.consecutiveFailures++
		if c.consecutiveFailures >= maxConsecutiveFailures && c.fallbackPool.URL != "" && c.fallback != nil {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelError,
				"stratum v2: %d consecutive failures, falling back to v1", c.consecutiveFailures)
			c.stats = Stats{}
			c.fallback(c.fallbackPool, c.notifications)
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) runOnce(stop <-chan struct{}) error {
	addr := net.JoinHostPort(c.pool.URL, strconv.Itoa(int(c.pool.Port)))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var authorityKey *[32]byte
	if c.pool.AuthorityPubkey != "" {
		key, err := decodeAuthorityPubkey(c.pool.AuthorityPubkey)
		if err != nil {
			return fmt.Errorf("authority key: %w", err)
		}
		authorityKey = &key
	}

	hs, err := noise.RunInitiatorHandshake(
		func(b []byte) error { _, err := conn.Write(b); return err },
		func(n int) ([]byte, error) {
			buf := make([]byte, n)
			if _, err := readFull(conn, buf); err != nil {
				return nil, err
			}
			return buf, nil
		},
		authorityKey,
	)
	if err != nil {
		return fmt.Errorf("noise handshake: %w", err)
	}

	sendCipher, err := noise.NewTransportCipher(hs.Keys.Send)
	if err != nil {
		return err
	}
	recvCipher, err := noise.NewTransportCipher(hs.Keys.Recv)
	if err != nil {
		return err
	}
	hs.Keys.Zero()

	c.mu.Lock()
	c.conn = conn
	c.transport = newTransport(conn, sendCipher, recvCipher)
	c.channelID = 0
	c.latestHash = nil
	c.pending = [pendingRingSize]*NewMiningJob{}
	c.mu.Unlock()

	if err := c.setup(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	c.consecutiveFailures = 0

	go func() {
		<-stop
		conn.Close()
	}()

	for {
		header, payload, err := c.transport.readMessage()
		if err != nil {
			return err
		}
		if err := c.dispatch(header, payload); err != nil {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v2: dispatch: %v", err)
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Client) setup() error {
	setup := SetupConnection{
		Protocol:   MiningProtocol,
		MinVersion: MinProtocolVersion,
		MaxVersion: MaxProtocolVersion,
		Flags:      FlagRequiresStandardJob,
		Endpoint:   STR0_255(net.JoinHostPort(c.pool.URL, strconv.Itoa(int(c.pool.Port)))),
		Vendor:     "bitaxe-core",
		DeviceID:   STR0_255(c.pool.User),
	}
	if err := c.transport.writeMessage(MsgTypeSetupConnection, 0, setup.serialize()); err != nil {
		return err
	}
	header, payload, err := c.transport.readMessage()
	if err != nil {
		return err
	}
	switch header.MsgType {
	case MsgTypeSetupConnectionSuccess:
		if _, err := deserializeSetupConnectionSuccess(payload); err != nil {
			return err
		}
	case MsgTypeSetupConnectionError:
		e, _ := deserializeSetupConnectionError(payload)
		return fmt.Errorf("setup rejected: %s", e.ErrorCode)
	default:
		return fmt.Errorf("unexpected message type %#02x during setup", header.MsgType)
	}

	var maxTarget [32]byte
	for i := range maxTarget {
		maxTarget[i] = 0xFF
	}
	open := OpenStandardMiningChannel{
		RequestID:       1,
		UserIdentity:    STR0_255(c.pool.User),
		NominalHashrate: 0,
		MaxTarget:       maxTarget,
	}
	if err := c.transport.writeMessage(MsgTypeOpenStandardMiningChannel, channelMsgBit, open.serialize()); err != nil {
		return err
	}
	header, payload, err = c.transport.readMessage()
	if err != nil {
		return err
	}
	switch header.MsgType {
	case MsgTypeOpenStandardMiningChannelOK:
		ok, err := deserializeOpenStandardMiningChannelSuccess(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.channelID = ok.ChannelID
		c.mu.Unlock()
	case MsgTypeOpenMiningChannelError:
		e, _ := deserializeOpenMiningChannelError(payload)
		return fmt.Errorf("open channel rejected: %s", e.ErrorCode)
	default:
		return fmt.Errorf("unexpected message type %#02x opening channel", header.MsgType)
	}
	return nil
}

func (c *Client) dispatch(header FrameHeader, payload []byte) error {
	switch header.MsgType {
	case MsgTypeNewMiningJob:
		m, err := deserializeNewMiningJob(payload)
		if err != nil {
			return err
		}
		c.handleNewMiningJob(m)
	case MsgTypeSetNewPrevHash:
		m, err := deserializeSetNewPrevHash(payload)
		if err != nil {
			return err
		}
		c.handleSetNewPrevHash(m)
	case MsgTypeSetTarget:
		m, err := deserializeSetTarget(payload)
		if err != nil {
			return err
		}
		c.builder.SetDifficulty(targetToDifficulty(m.MaxTarget))
	case MsgTypeSubmitSharesSuccess:
		m, err := deserializeSubmitSharesSuccess(payload)
		if err != nil {
			return err
		}
		atomic.AddUint64(&c.stats.Accepted, uint64(m.NewSubmits))
	case MsgTypeSubmitSharesError:
		m, err := deserializeSubmitSharesError(payload)
		if err != nil {
			return err
		}
		atomic.AddUint64(&c.stats.Rejected, 1)
		c.loggers.Message(logging.CategoryMining, btclog.LevelWarn, "stratum v2: share rejected: %s", m.ErrorCode)
	default:
		c.loggers.Message(logging.CategoryNetwork, btclog.LevelDebug, "stratum v2: unhandled message type %#02x", header.MsgType)
	}
	return nil
}

// handleNewMiningJob implements the Idle/PendingFuture state diagram
// (spec §4.7): an immediate job (HasMinNTime) is mineable against the
// latest known prev_hash right away; a future job waits in the ring
// for the matching SetNewPrevHash.
func (c *Client) handleNewMiningJob(m NewMiningJob) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.HasMinNTime {
		if c.latestHash == nil {
			return // no prev_hash context yet; drop, matching "blocked on next SetNewPrevHash"
		}
		n := &job.V2Notification{
			JobID:      m.JobID,
			Version:    m.Version,
			MerkleRoot: m.MerkleRoot,
			PrevHash:   c.latestHash.PrevHash,
			NBits:      c.latestHash.NBits,
			NTime:      m.MinNTime,
			CleanJobs:  false,
		}
		if err := c.notifications.DropOldestAndEnqueue(any(n)); err != nil {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v2: enqueue job: %v", err)
		}
		return
	}

	idx := m.JobID % pendingRingSize
	mCopy := m
	c.pending[idx] = &mCopy
}

// handleSetNewPrevHash releases the matching pending future job (and
// discards any other stale ones, which were issued against a
// prev_hash that no longer applies) per spec §4.7.
func (c *Client) handleSetNewPrevHash(m SetNewPrevHash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latestHash = &m

	idx := m.JobID % pendingRingSize
	matched := c.pending[idx]
	if matched != nil && matched.JobID == m.JobID {
		n := &job.V2Notification{
			JobID:      matched.JobID,
			Version:    matched.Version,
			MerkleRoot: matched.MerkleRoot,
			PrevHash:   m.PrevHash,
			NBits:      m.NBits,
			NTime:      m.MinNTime,
			CleanJobs:  true,
		}
		if err := c.notifications.DropOldestAndEnqueue(any(n)); err != nil {
			c.loggers.Message(logging.CategoryNetwork, btclog.LevelWarn, "stratum v2: enqueue job: %v", err)
		}
	}
	c.pending = [pendingRingSize]*NewMiningJob{}
}

// SubmitShare implements result.Submitter for the SV2 path.
func (c *Client) SubmitShare(s result.Share) error {
	jobID, err := strconv.ParseUint(s.PoolJobID, 10, 32)
	if err != nil {
		return fmt.Errorf("v2: bad job id %q: %w", s.PoolJobID, err)
	}

	c.mu.Lock()
	channelID := c.channelID
	c.nextSeq++
	seq := c.nextSeq
	t := c.transport
	c.mu.Unlock()

	if t == nil {
		return fmt.Errorf("v2: no active connection")
	}

	msg := SubmitSharesStandard{
		ChannelID:   channelID,
		SequenceNum: seq,
		JobID:       uint32(jobID),
		Nonce:       s.Nonce,
		NTime:       s.NTime,
		Version:     s.Version,
	}
	atomic.AddUint64(&c.stats.Submitted, 1)
	if err := t.writeMessage(MsgTypeSubmitSharesStandard, channelMsgBit, msg.serialize()); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

// Stats returns accept/reject/submit counters.
func (c *Client) Stats() Stats {
	return Stats{
		Accepted:  atomic.LoadUint64(&c.stats.Accepted),
		Rejected:  atomic.LoadUint64(&c.stats.Rejected),
		Submitted: atomic.LoadUint64(&c.stats.Submitted),
	}
}

func decodeAuthorityPubkey(base58 string) ([32]byte, error) {
	return noise.DecodeAuthorityKey(base58)
}

// targetToDifficulty converts SetTarget's little-endian U256 maximum
// target into pdiff (true_difficulty_1 / target), the same ratio
// BmJob.Difficulty expects (spec §4.7).
func targetToDifficulty(maxTarget [32]byte) float64 {
	rev := make([]byte, 32)
	for i := range maxTarget {
		rev[i] = maxTarget[31-i]
	}
	target := new(big.Int).SetBytes(rev)
	if target.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(mining.Diff1Target, target)
	f, _ := ratio.Float64()
	return f
}
