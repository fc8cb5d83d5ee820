package eventlog

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"agentlend/core/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEmitArchivesRenderedEvent(t *testing.T) {
	store := newTestStore(t)
	store.SetRequestID("req-1")

	store.Emit(events.LoanRequested{AgentID: 7, LoanID: 3, Amount: big.NewInt(500_000_000), DurationDays: 30, RateBps: 500})
	require.NoError(t, store.Err())

	records, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, events.TypeLoanRequested, rec.Type)
	require.Equal(t, uint64(7), rec.AgentID)
	require.Equal(t, uint64(3), rec.LoanID)
	require.Equal(t, "req-1", rec.RequestID)
	require.Equal(t, int64(1_700_000_000), rec.CreatedAt.Unix())

	attrs, err := rec.Attrs()
	require.NoError(t, err)
	require.Equal(t, "500000000", attrs["amount"])
	require.Equal(t, "30", attrs["durationDays"])
	require.Equal(t, "500", attrs["rateBps"])
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	lender := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	store.Emit(events.PoolCreated{AgentID: 1, Owner: lender})
	store.Emit(events.PoolCreated{AgentID: 2, Owner: lender})
	store.Emit(events.LiquiditySupplied{AgentID: 1, Lender: lender, Amount: big.NewInt(10)})
	store.Emit(events.LoanRepaid{LoanID: 9, Borrower: lender, TotalAmount: big.NewInt(11), OnTime: true})
	require.NoError(t, store.Err())

	ctx := context.Background()

	byType, err := store.List(ctx, Filter{Type: events.TypePoolCreated})
	require.NoError(t, err)
	require.Len(t, byType, 2)
	require.Equal(t, uint64(1), byType[0].AgentID)
	require.Equal(t, uint64(2), byType[1].AgentID)

	byAgent, err := store.List(ctx, Filter{AgentID: 1})
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
	require.Equal(t, events.TypeLiquiditySupplied, byAgent[1].Type)

	byLoan, err := store.List(ctx, Filter{LoanID: 9})
	require.NoError(t, err)
	require.Len(t, byLoan, 1)
	require.Zero(t, byLoan[0].AgentID)

	limited, err := store.List(ctx, Filter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, limited, 3)
}

func TestEmitIgnoresNil(t *testing.T) {
	store := newTestStore(t)
	store.Emit(nil)
	records, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreWorksBehindBuffer(t *testing.T) {
	store := newTestStore(t)
	var buf events.Buffer
	buf.Emit(events.LedgerPaused{By: common.HexToAddress("0x01")})
	buf.Emit(events.LedgerUnpaused{By: common.HexToAddress("0x01")})

	records, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, records)

	buf.Flush(store)
	records, err = store.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, events.TypeLedgerPaused, records[0].Type)
}

func TestNewMigratesExistingHandle(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := New(db)
	require.NoError(t, err)
	defer store.Close()
	require.True(t, db.Migrator().HasTable(&Record{}))

	store.Emit(events.PlatformFeeUpdated{PreviousBps: 100, FeeBps: 200})
	records, err := store.List(context.Background(), Filter{Type: events.TypePlatformFeeUpdated})
	require.NoError(t, err)
	require.Len(t, records, 1)
}
