package diag

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/axeforge/bitaxe-core/internal/hashrate"
	"github.com/axeforge/bitaxe-core/internal/power"
)

type fakeSource struct {
	state   *power.State
	hr      hashrate.Snapshot
	session float64
	allTime float64
}

func (f fakeSource) PowerState() *power.State           { return f.state }
func (f fakeSource) HashrateSnapshot() hashrate.Snapshot { return f.hr }
func (f fakeSource) BestDifficulties() (float64, float64) {
	return f.session, f.allTime
}

func TestServerStreamsSnapshotsToConnectedClient(t *testing.T) {
	st := &power.State{}
	src := fakeSource{
		state:   st,
		hr:      hashrate.Snapshot{Hashrate1m: 550, Hashrate1h: 540},
		session: 1_000_000,
		allTime: 5_000_000,
	}

	sockPath := filepath.Join(t.TempDir(), "bitaxed.sock")
	srv := NewServer(sockPath, src)
	defer srv.Close()

	go func() {
		_ = srv.Serve(10 * time.Millisecond)
	}()

	var conn net.Conn
	var err error
	for i := 0; i < 100; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(line, &snap))
	require.Equal(t, 550.0, snap.Hashrate1mGHs)
	require.Equal(t, 540.0, snap.Hashrate1hGHs)
	require.Equal(t, 1_000_000.0, snap.BestSessionDifficulty)
	require.Equal(t, 5_000_000.0, snap.BestAllTimeDifficulty)
}

func TestServerCloseRemovesSocketFile(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "bitaxed.sock")
	srv := NewServer(sockPath, fakeSource{state: &power.State{}})

	go func() {
		_ = srv.Serve(10 * time.Millisecond)
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, srv.Close())

	_, err := net.Dial("unix", sockPath)
	require.Error(t, err)
}
