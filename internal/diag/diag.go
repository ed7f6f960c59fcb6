// Package diag is the bitaxed daemon's diagnostic socket: a Unix
// domain listener that streams newline-delimited JSON snapshots to
// whatever reads the connection, spec §0's "attaches to a running
// daemon's diagnostic socket" requirement for cmd/bitaxe-monitor.
//
// A plain net.Listen("unix", ...) is used rather than any HTTP/REST
// framework: spec §1 carries the original firmware's HTTP/REST/
// WebSocket admin surface as an explicit Non-goal, and the teacher's
// own stratum clients already reach for net.Dial directly whenever
// they need raw socket I/O rather than a higher-level transport
// library, so a bare net.Listener is the idiomatic choice here too.
package diag

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/axeforge/bitaxe-core/internal/hashrate"
	"github.com/axeforge/bitaxe-core/internal/power"
	"github.com/axeforge/bitaxe-core/internal/power/overheat"
)

// Snapshot is one frame of the stream: everything an operator TUI
// needs to render live hashrate, temperature, and job telemetry
// (spec §0's description of cmd/bitaxe-monitor).
type Snapshot struct {
	TimestampUnix int64   `json:"ts"`
	Hashrate1mGHs float64 `json:"hashrate_1m_ghs"`
	Hashrate1hGHs float64 `json:"hashrate_1h_ghs"`

	ChipTempC     float64 `json:"chip_temp_c"`
	VRTempC       float64 `json:"vr_temp_c"`
	PowerW        float64 `json:"power_w"`
	RailVoltageMV int32   `json:"rail_voltage_mv"`
	RailCurrentMA int32   `json:"rail_current_ma"`
	CoreVoltageMV uint16  `json:"core_voltage_mv"`
	FrequencyMHz  float64 `json:"frequency_mhz"`
	FanPercent    float64 `json:"fan_percent"`
	FanRPM        uint32  `json:"fan_rpm"`

	OverheatSeverity int `json:"overheat_severity"`

	BestSessionDifficulty float64 `json:"best_session_difficulty"`
	BestAllTimeDifficulty float64 `json:"best_alltime_difficulty"`
}

// Source is the subset of World's collaborators the diagnostic
// socket reads from, kept as a narrow interface so this package does
// not import internal/world (which would be a cycle: world runs the
// server).
type Source interface {
	PowerState() *power.State
	HashrateSnapshot() hashrate.Snapshot
	BestDifficulties() (session, allTime float64)
}

// Server accepts connections on a Unix domain socket and pushes one
// JSON snapshot per connected client every tick.
type Server struct {
	path   string
	source Source

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a server bound to socketPath once Serve is called.
// An existing stale socket file at socketPath is removed first, the
// same cleanup the teacher's writePortFile/cleanupPortFile pair does
// for its own discovery file.
func NewServer(socketPath string, source Source) *Server {
	return &Server{path: socketPath, source: source}
}

// Serve listens until the listener is closed (via Close or process
// exit) or accept fails permanently. Run it in its own goroutine.
func (s *Server) Serve(tick time.Duration) error {
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.stream(conn, tick)
	}
}

// Close stops accepting new connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) stream(conn net.Conn, tick time.Duration) {
	defer conn.Close()
	enc := json.NewEncoder(conn)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for range ticker.C {
		if err := enc.Encode(s.snapshot()); err != nil {
			return
		}
	}
}

func (s *Server) snapshot() Snapshot {
	now := time.Now().Unix()
	hr := s.source.HashrateSnapshot()
	session, allTime := s.source.BestDifficulties()

	snap := Snapshot{
		TimestampUnix:         now,
		Hashrate1mGHs:         hr.Hashrate1m,
		Hashrate1hGHs:         hr.Hashrate1h,
		BestSessionDifficulty: session,
		BestAllTimeDifficulty: allTime,
	}

	if ps := s.source.PowerState(); ps != nil {
		p := ps.Snapshot()
		snap.ChipTempC = p.ChipTempAvgC
		snap.VRTempC = p.VRTempC
		snap.PowerW = p.PowerW
		snap.RailVoltageMV = p.RailVoltageMV
		snap.RailCurrentMA = p.RailCurrentMA
		snap.CoreVoltageMV = p.CoreVoltageMV
		snap.FrequencyMHz = p.FrequencyMHz
		snap.FanPercent = p.FanPercent
		snap.FanRPM = p.FanRPM
	}

	return snap
}

// SeverityNone etc. mirror overheat.Severity's values for clients
// that don't import internal/power/overheat directly.
const (
	SeverityNone = int(overheat.SeverityNone)
	SeveritySoft = int(overheat.SeveritySoft)
	SeverityHard = int(overheat.SeverityHard)
)
