package economy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStartsWithDefaultCar(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	snap := l.Open("a")

	assert.Equal(t, Snapshot{Money: 100, Owned: []int{0}, Car: 0}, snap)
	assert.Equal(t, snap, l.Open("a"), "open is idempotent")
}

func TestPurchase(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	l.Open("a")

	_, ok := l.Purchase("a", 1)
	assert.False(t, ok, "too expensive")

	_, ok = l.Payout("a", 500)
	require.True(t, ok)

	snap, ok := l.Purchase("a", 1)
	require.True(t, ok)
	assert.Equal(t, 100, snap.Money)
	assert.Equal(t, []int{0, 1}, snap.Owned)
	assert.Equal(t, 1, snap.Car)

	_, ok = l.Purchase("a", 1)
	assert.False(t, ok, "already owned")

	_, ok = l.Purchase("a", 42)
	assert.False(t, ok, "unknown item")

	_, ok = l.Purchase("ghost", 0)
	assert.False(t, ok)
}

func TestFailedPurchaseChangesNothing(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	before := l.Open("a")

	_, ok := l.Purchase("a", 3)
	assert.False(t, ok)
	after, _ := l.Snapshot("a")
	assert.Equal(t, before, after)
}

func TestEquip(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 2000)
	l.Open("a")

	assert.False(t, l.Equip("a", 2))
	_, ok := l.Purchase("a", 2)
	require.True(t, ok)

	assert.True(t, l.Equip("a", 0))
	v, ok := l.Equipped("a")
	require.True(t, ok)
	assert.Equal(t, "Rookie Kart", v.Name)

	assert.True(t, l.Equip("a", 2))
	assert.False(t, l.Equip("b", 0))
}

func TestConservation(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	l.Open("a")
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			l.Purchase("a", rng.Intn(6)-1)
		case 1:
			l.Equip("a", rng.Intn(6)-1)
		case 2:
			l.Payout("a", rng.Intn(300))
		}
		snap, _ := l.Snapshot("a")
		require.GreaterOrEqual(t, snap.Money, 0)
		require.Contains(t, snap.Owned, snap.Car)
		require.Contains(t, snap.Owned, DefaultVehicleID)
	}
}

func TestPayoutRejectsNegative(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	l.Open("a")
	_, ok := l.Payout("a", -50)
	assert.False(t, ok)
}

func TestCloseForgets(t *testing.T) {
	l := NewLedger(DefaultCatalog(), 100)
	l.Open("a")
	l.Payout("a", 1000)
	l.Close("a")

	assert.Zero(t, l.Len())
	assert.Equal(t, 100, l.Open("a").Money)
}
