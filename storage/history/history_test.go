package history

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"yieldfarm/core/events"
	"yieldfarm/crypto"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	rec, err := NewRecorder(db, nil)
	require.NoError(t, err)
	return rec
}

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestRecorderStoresFarmEvents(t *testing.T) {
	rec := newRecorder(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.SetNowFunc(func() time.Time { return at })

	alice := crypto.ModuleAddress("alice")
	bob := crypto.ModuleAddress("bob")
	rec.Emit(events.FarmDeposited{PoolID: 1, User: alice, Requested: big.NewInt(1000), Credited: big.NewInt(990), NewStake: big.NewInt(990)})
	rec.Emit(events.FarmHarvested{PoolID: 1, User: alice, Pending: big.NewInt(5), Paid: big.NewInt(5)})
	rec.Emit(events.FarmDeposited{PoolID: 2, User: bob, Requested: big.NewInt(1), Credited: big.NewInt(1), NewStake: big.NewInt(1)})
	rec.Emit(plainEvent{})

	ctx := context.Background()
	records, err := rec.ForUser(ctx, alice.String(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, events.TypeFarmHarvested, records[0].Type)
	require.Equal(t, events.TypeFarmDeposited, records[1].Type)
	require.NotNil(t, records[1].PoolID)
	require.EqualValues(t, 1, *records[1].PoolID)
	require.True(t, records[1].RecordedAt.Equal(at))

	attrs, err := records[1].Attrs()
	require.NoError(t, err)
	require.Equal(t, "990", attrs["credited"])

	pool2, err := rec.ForPool(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, pool2, 1)
	require.Equal(t, bob.String(), pool2[0].User)
}

func TestRecorderLimitsResults(t *testing.T) {
	rec := newRecorder(t)
	alice := crypto.ModuleAddress("alice")
	for i := 0; i < 5; i++ {
		rec.Emit(events.FarmHarvested{PoolID: 0, User: alice, Pending: big.NewInt(int64(i)), Paid: big.NewInt(int64(i))})
	}
	records, err := rec.ForUser(context.Background(), alice.String(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	attrs, err := records[0].Attrs()
	require.NoError(t, err)
	require.Equal(t, "4", attrs["paid"])
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestNewRecorderRequiresDB(t *testing.T) {
	_, err := NewRecorder(nil, nil)
	require.Error(t, err)
}
