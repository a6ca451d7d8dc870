package explorer

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftbank/core/events"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	ix.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return ix
}

func TestIndexPersistsEmittedEvents(t *testing.T) {
	ix := openTestIndex(t)

	account := common.HexToAddress("0x1000000000000000000000000000000000000001")
	ix.Emit(events.BankDeposited{
		Account: account,
		UnitIDs: []uint64{1, 2},
		Payout:  big.NewInt(194000),
		Burned:  big.NewInt(6000),
	})
	ix.Emit(events.SaleUpdated{Active: true})

	stored, err := ix.ListEvents("", "", 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Descending sequence order: latest first.
	require.Equal(t, "mint.saleUpdated", stored[0].Type)
	require.Equal(t, "bank.deposited", stored[1].Type)
	require.Equal(t, "194000", stored[1].Attributes["payout"])
	require.Equal(t, int64(1_700_000_000), stored[1].CreatedAt)
	require.NotEmpty(t, stored[1].ID)
}

func TestIndexFiltersByType(t *testing.T) {
	ix := openTestIndex(t)

	ix.Emit(events.SaleUpdated{Active: true})
	ix.Emit(events.SaleUpdated{Active: false})
	ix.Emit(events.BankActivated{})

	sales, err := ix.ListEvents("mint.saleUpdated", "", 10)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	require.Equal(t, "false", sales[0].Attributes["active"])
	require.Equal(t, "true", sales[1].Attributes["active"])

	none, err := ix.ListEvents("bank.withdrawn", "", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestIndexFiltersByAccount(t *testing.T) {
	ix := openTestIndex(t)

	first := common.HexToAddress("0x1000000000000000000000000000000000000001")
	second := common.HexToAddress("0x2000000000000000000000000000000000000002")
	ix.Emit(events.BankDeposited{Account: first, UnitIDs: []uint64{1}, Payout: big.NewInt(194000), Burned: big.NewInt(6000)})
	ix.Emit(events.BankDeposited{Account: second, UnitIDs: []uint64{2}, Payout: big.NewInt(194000), Burned: big.NewInt(6000)})

	stored, err := ix.ListEvents("", first.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, first.Hex(), stored[0].Attributes["account"])
}

func TestIndexRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrPathRequired)
}
