package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableRegisterIsIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")
	tbl.Register("w0")
	require.Equal(t, 1, tbl.Size())
}

func TestTableAssignReleaseRoundTrip(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")

	workerID, ok := tbl.Assign("c0")
	require.True(t, ok)
	require.Equal(t, "w0", workerID)
	require.Equal(t, 0, tbl.Idle())

	tbl.Release("w0")
	require.Equal(t, 1, tbl.Idle())
}

func TestTableAssignFailsWhenAllBusy(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")
	_, ok := tbl.Assign("c0")
	require.True(t, ok)

	_, ok = tbl.Assign("c1")
	require.False(t, ok, "admission control should reject when every worker is busy")
}

func TestTableAssignPrefersInsertionOrder(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")
	tbl.Register("w1")

	workerID, ok := tbl.Assign("c0")
	require.True(t, ok)
	require.Equal(t, "w0", workerID)
}

func TestTableRemoveReportsAssignedClient(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")
	_, _ = tbl.Assign("c0")

	clientID, hadClient := tbl.Remove("w0")
	require.True(t, hadClient)
	require.Equal(t, "c0", clientID)
	require.Equal(t, 0, tbl.Size())
}

func TestTableRemoveIdleWorkerReportsNoClient(t *testing.T) {
	tbl := NewTable()
	tbl.Register("w0")

	_, hadClient := tbl.Remove("w0")
	require.False(t, hadClient)
}

func TestTableRemoveUnknownWorkerIsNoop(t *testing.T) {
	tbl := NewTable()
	_, hadClient := tbl.Remove("ghost")
	require.False(t, hadClient)
}
