package blockstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog/backend"
	"github.com/ehrlich-b/go-msclog/internal/endpoint"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logging"
	"github.com/ehrlich-b/go-msclog/internal/transfer"
)

// resetAfter raises the reset signal once n blocks have completed
type resetAfter struct {
	n     int
	calls int
}

func (r *resetAfter) ResetRequested() bool {
	r.calls++
	return r.n > 0 && r.calls >= r.n
}

type countingMedium struct {
	*backend.Memory
	sizeCalls int
}

func (c *countingMedium) Size() int64 {
	c.sizeCalls++
	return c.Memory.Size()
}

type recordingObserver struct {
	interfaces.NoOpObserver
	aborts []interfaces.AbortCause
	reads  int
	writes int
}

func (r *recordingObserver) ObserveAbort(cause interfaces.AbortCause) {
	r.aborts = append(r.aborts, cause)
}

func (r *recordingObserver) ObserveRead(uint64, uint64, bool)  { r.reads++ }
func (r *recordingObserver) ObserveWrite(uint64, uint64, bool) { r.writes++ }

func setup(t *testing.T, blocks int, cfg endpoint.Config) (*Store, *endpoint.FIFO, *backend.Memory, *recordingObserver) {
	t.Helper()
	mem := backend.NewMemory(int64(blocks) * 512)
	fifo := endpoint.New(cfg)
	adapter, err := transfer.NewAdapter(fifo, 0)
	require.NoError(t, err)
	obs := &recordingObserver{}
	store := New(mem, adapter, &Options{Observer: obs, Logger: logging.Nop()})
	return store, fifo, mem, obs
}

func pattern(lba int) []byte {
	b := make([]byte, 512)
	for i := range b {
		b[i] = byte(lba*7 + i)
	}
	return b
}

func TestReadThenWriteRoundTrip(t *testing.T) {
	store, fifo, mem, _ := setup(t, 32, endpoint.Config{BankSize: 64, Banks: 64, Timeout: 50 * time.Millisecond})
	for lba := 0; lba < 32; lba++ {
		_, err := mem.WriteAt(pattern(lba), int64(lba)*512)
		require.NoError(t, err)
	}
	original := append([]byte(nil), mem.Bytes()[4*512:8*512]...)
	ctx := context.Background()

	fifo.Select(endpoint.DirIn)
	n, err := store.ReadBlocks(&resetAfter{}, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := fifo.HostReceive(ctx, 4*512)
	require.NoError(t, err)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Fatalf("read data mismatch (-want +got):\n%s", diff)
	}

	// Scribble over the region, then write the read data back
	_, err = mem.WriteAt(make([]byte, 4*512), 4*512)
	require.NoError(t, err)

	fifo.Select(endpoint.DirOut)
	require.NoError(t, fifo.HostSend(ctx, got))
	n, err = store.WriteBlocks(&resetAfter{}, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	if diff := cmp.Diff(original, mem.Bytes()[4*512:8*512]); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEveryBlockStartsAtOffsetZero(t *testing.T) {
	store, fifo, mem, _ := setup(t, 4, endpoint.Config{BankSize: 64, Banks: 32})
	for lba := 0; lba < 4; lba++ {
		_, err := mem.WriteAt(pattern(lba), int64(lba)*512)
		require.NoError(t, err)
	}

	fifo.Select(endpoint.DirIn)
	_, err := store.ReadBlocks(nil, 0, 3)
	require.NoError(t, err)

	got, err := fifo.HostReceive(context.Background(), 3*512)
	require.NoError(t, err)
	for lba := 0; lba < 3; lba++ {
		assert.Equal(t, pattern(lba), got[lba*512:(lba+1)*512], "block %d", lba)
	}
}

func TestWriteResetAfterFirstBlock(t *testing.T) {
	store, fifo, mem, obs := setup(t, 16, endpoint.Config{BankSize: 64, Banks: 64})
	fifo.Select(endpoint.DirOut)

	data := bytes.Repeat([]byte{0xEE}, 3*512)
	require.NoError(t, fifo.HostSend(context.Background(), data))

	n, err := store.WriteBlocks(&resetAfter{n: 1}, 10, 3)
	assert.ErrorIs(t, err, ErrHostReset)
	assert.Equal(t, 1, n)

	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 512), mem.Bytes()[10*512:11*512])
	assert.Equal(t, make([]byte, 2*512), mem.Bytes()[11*512:13*512], "blocks 11-12 must be untouched")
	assert.Equal(t, []interfaces.AbortCause{interfaces.AbortReset}, obs.aborts)
}

func TestReadResetStopsWithinOneBlock(t *testing.T) {
	store, fifo, _, _ := setup(t, 16, endpoint.Config{BankSize: 64, Banks: 64})
	fifo.Select(endpoint.DirIn)

	n, err := store.ReadBlocks(&resetAfter{n: 2}, 0, 8)
	assert.ErrorIs(t, err, ErrHostReset)
	assert.Equal(t, 2, n)
}

func TestReadStallAborts(t *testing.T) {
	store, fifo, _, obs := setup(t, 4, endpoint.Config{BankSize: 64, Banks: 1, Timeout: 5 * time.Millisecond})
	fifo.Select(endpoint.DirIn)

	n, err := store.ReadBlocks(nil, 0, 2)
	assert.ErrorIs(t, err, interfaces.ErrStall)
	assert.Zero(t, n)
	assert.Equal(t, []interfaces.AbortCause{interfaces.AbortStall}, obs.aborts)
	assert.Equal(t, 1, obs.reads)
}

func TestReadStallOnFinalBank(t *testing.T) {
	// Seven banks fit in the queue; the eighth and last one of the block
	// is never taken by the host.
	store, fifo, _, obs := setup(t, 4, endpoint.Config{BankSize: 64, Banks: 7, Timeout: 5 * time.Millisecond})
	fifo.Select(endpoint.DirIn)

	n, err := store.ReadBlocks(nil, 0, 1)
	assert.ErrorIs(t, err, interfaces.ErrStall)
	assert.Zero(t, n)
	assert.Equal(t, []interfaces.AbortCause{interfaces.AbortStall}, obs.aborts)
}

func TestWriteStallLeavesMediumUntouched(t *testing.T) {
	store, fifo, mem, _ := setup(t, 4, endpoint.Config{BankSize: 64, Banks: 8, Timeout: 5 * time.Millisecond})
	fifo.Select(endpoint.DirOut)

	// Half a block, then the host goes quiet
	require.NoError(t, fifo.HostSend(context.Background(), bytes.Repeat([]byte{1}, 256)))

	n, err := store.WriteBlocks(nil, 1, 1)
	assert.ErrorIs(t, err, interfaces.ErrStall)
	assert.Zero(t, n)
	assert.Equal(t, make([]byte, 512), mem.Bytes()[512:1024])
}

func TestOutOfRange(t *testing.T) {
	store, fifo, _, obs := setup(t, 8, endpoint.Config{})
	fifo.Select(endpoint.DirIn)

	_, err := store.ReadBlocks(nil, 6, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = store.WriteBlocks(nil, 8, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Zero(t, obs.reads+obs.writes)
}

func TestBlockCountCachedOnceNonZero(t *testing.T) {
	mem := &countingMedium{Memory: backend.NewMemory(64 * 512)}
	adapter, err := transfer.NewAdapter(endpoint.New(endpoint.Config{}), 0)
	require.NoError(t, err)
	store := New(mem, adapter, &Options{Logger: logging.Nop()})

	mem.SetReady(false)
	assert.Zero(t, store.BlockCount())
	assert.Zero(t, store.BlockCount())
	assert.Equal(t, 2, mem.sizeCalls, "zero must not be cached")

	mem.SetReady(true)
	assert.Equal(t, uint32(64), store.BlockCount())
	assert.Equal(t, uint32(64), store.BlockCount())
	assert.Equal(t, 3, mem.sizeCalls)
}

func TestNotReadyRejectsTransfers(t *testing.T) {
	store, _, mem, _ := setup(t, 8, endpoint.Config{})
	mem.SetReady(false)

	_, err := store.ReadBlocks(nil, 0, 1)
	assert.ErrorIs(t, err, interfaces.ErrNotReady)
}
