package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog/internal/interfaces"
)

func TestOutDirectionBanks(t *testing.T) {
	f := New(Config{BankSize: 8, Banks: 2, Timeout: 50 * time.Millisecond})
	f.Select(DirOut)

	ctx := context.Background()
	require.NoError(t, f.HostSend(ctx, []byte("abcdefgh12345678")))

	assert.False(t, f.ReadWriteAllowed())
	require.NoError(t, f.WaitUntilReady())
	assert.True(t, f.ReadWriteAllowed())

	p := make([]byte, 8)
	f.Read(p)
	assert.Equal(t, "abcdefgh", string(p))
	assert.False(t, f.ReadWriteAllowed())

	f.ClearOUT()
	require.NoError(t, f.WaitUntilReady())
	f.Read(p)
	assert.Equal(t, "12345678", string(p))
}

func TestOutWaitTimesOut(t *testing.T) {
	f := New(Config{BankSize: 8, Timeout: 10 * time.Millisecond})
	f.Select(DirOut)

	err := f.WaitUntilReady()
	assert.ErrorIs(t, err, interfaces.ErrStall)
}

func TestInDirectionHandOff(t *testing.T) {
	f := New(Config{BankSize: 4, Banks: 2, Timeout: 50 * time.Millisecond})
	f.Select(DirIn)

	assert.True(t, f.ReadWriteAllowed())
	f.Write([]byte{1, 2, 3, 4})
	assert.False(t, f.ReadWriteAllowed())

	f.ClearIN()
	require.NoError(t, f.WaitUntilReady())
	assert.True(t, f.ReadWriteAllowed())

	got, err := f.HostReceive(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestInStallWhenHostStopsReading(t *testing.T) {
	f := New(Config{BankSize: 2, Banks: 1, Timeout: 10 * time.Millisecond})
	f.Select(DirIn)

	f.Write([]byte{1, 2})
	f.ClearIN() // fills the only queued slot
	require.NoError(t, f.WaitUntilReady())

	f.Write([]byte{3, 4})
	f.ClearIN() // nobody is reading
	assert.ErrorIs(t, f.WaitUntilReady(), interfaces.ErrStall)
}

func TestWriteNeverOverflowsBank(t *testing.T) {
	f := New(Config{BankSize: 4})
	f.Select(DirIn)

	f.Write([]byte{1, 2, 3, 4, 5, 6})
	assert.False(t, f.ReadWriteAllowed())
}

func TestReset(t *testing.T) {
	f := New(Config{BankSize: 4, Banks: 2})
	require.NoError(t, f.HostSend(context.Background(), []byte{1, 2, 3, 4}))

	f.Reset()
	f.Select(DirOut)
	f.ClearOUT()

	f.timeout = 5 * time.Millisecond
	assert.ErrorIs(t, f.WaitUntilReady(), interfaces.ErrStall)
}

func TestHostReceiveContextCancel(t *testing.T) {
	f := New(Config{BankSize: 4})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.HostReceive(ctx, 4)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "IN", DirIn.String())
	assert.Equal(t, "OUT", DirOut.String())
}
