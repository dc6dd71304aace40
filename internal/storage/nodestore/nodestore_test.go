package nodestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmargin/margind/internal/core/ledger"
)

func testSnapshot(seq uint32) *Snapshot {
	return &Snapshot{
		Header: ledger.LedgerHeader{
			LedgerSeq:     seq,
			LedgerVersion: 10,
			CloseTime:     3600,
		},
		Entries: []ledger.LedgerEntry{
			{
				LastModifiedLedgerSeq: seq,
				Data: ledger.EntryData{
					Type: ledger.EntryTypeTrustLine,
					TrustLine: &ledger.TrustLineEntry{
						AccountID: "GALICE",
						Asset:     ledger.MustNewCreditAsset("MRG", "GISSUER"),
						Limit:     1000,
						Balance:   400,
						Debt:      -25,
						Flags:     ledger.AuthorizedFlag,
					},
				},
			},
			{
				LastModifiedLedgerSeq: seq,
				Data: ledger.EntryData{
					Type: ledger.EntryTypeData,
					Data: &ledger.DataEntry{
						AccountID: "GFEED",
						DataName:  "ION",
						DataValue: []byte("100"),
					},
				},
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(testSnapshot(5)))

	got, err := store.Get(5)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, uint32(5), got.Header.LedgerSeq)
	require.Len(t, got.Entries, 2)

	tl := got.Entries[0].MustTrustLine()
	assert.Equal(t, "GALICE", tl.AccountID)
	assert.Equal(t, int64(-25), tl.Debt)
	assert.Equal(t, []byte("100"), got.Entries[1].MustData().DataValue)
}

func TestGetMissingSnapshot(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEncodeDecodeHandlesIncompressibleData(t *testing.T) {
	snap := testSnapshot(1)
	data, err := encode(snap)
	require.NoError(t, err)

	got, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap.Header, got.Header)
}
