package events

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/crypto"
)

type collector struct {
	seen []string
}

func (c *collector) Emit(evt Event) { c.seen = append(c.seen, evt.EventType()) }

func TestBufferFlushesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(FarmPoolAdded{PoolID: 0})
	buf.Emit(FarmHarvested{PoolID: 0})
	buf.Emit(nil)
	require.Equal(t, 2, buf.Len())

	sink := &collector{}
	buf.Flush(sink)
	require.Equal(t, []string{TypeFarmPoolAdded, TypeFarmHarvested}, sink.seen)
	require.Zero(t, buf.Len())

	buf.Emit(FarmDeposited{})
	buf.Reset()
	buf.Flush(sink)
	require.Len(t, sink.seen, 2)
}

func TestMultiEmitterSkipsNil(t *testing.T) {
	a, b := &collector{}, &collector{}
	MultiEmitter{a, nil, b}.Emit(VaultDeposited{})
	require.Equal(t, []string{TypeVaultDeposited}, a.seen)
	require.Equal(t, []string{TypeVaultDeposited}, b.seen)
}

func TestFarmHarvestedAttributes(t *testing.T) {
	user := crypto.ModuleAddress("user")
	evt := FarmHarvested{PoolID: 4, User: user, Pending: big.NewInt(100), Paid: nil}.Event()
	require.Equal(t, TypeFarmHarvested, evt.Type)
	require.Equal(t, map[string]string{
		"pid":     "4",
		"user":    user.String(),
		"pending": "100",
		"paid":    "0",
	}, evt.Attributes)
}
