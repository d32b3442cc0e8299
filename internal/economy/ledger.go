package economy

import (
	"sort"
)

// Snapshot is what the owning participant sees of its record.
type Snapshot struct {
	Money int   `json:"money"`
	Owned []int `json:"owned"`
	Car   int   `json:"car"`
}

type account struct {
	balance  int
	owned    map[int]bool
	equipped int
}

func (a *account) snapshot() Snapshot {
	owned := make([]int, 0, len(a.owned))
	for id := range a.owned {
		owned = append(owned, id)
	}
	sort.Ints(owned)
	return Snapshot{Money: a.balance, Owned: owned, Car: a.equipped}
}

// Ledger holds one account per connected participant. It is not safe for
// concurrent use; the game loop serializes access.
type Ledger struct {
	catalog  Catalog
	start    int
	accounts map[string]*account
}

// NewLedger returns an empty ledger; new accounts receive startBalance.
func NewLedger(catalog Catalog, startBalance int) *Ledger {
	if startBalance < 0 {
		startBalance = 0
	}
	return &Ledger{
		catalog:  catalog,
		start:    startBalance,
		accounts: make(map[string]*account),
	}
}

// Catalog returns the shop.
func (l *Ledger) Catalog() Catalog { return l.catalog }

// Open creates the account for id, or returns the existing one.
func (l *Ledger) Open(id string) Snapshot {
	if a, ok := l.accounts[id]; ok {
		return a.snapshot()
	}
	a := &account{
		balance:  l.start,
		owned:    map[int]bool{DefaultVehicleID: true},
		equipped: DefaultVehicleID,
	}
	l.accounts[id] = a
	return a.snapshot()
}

// Close discards the account. Nothing is persisted.
func (l *Ledger) Close(id string) {
	delete(l.accounts, id)
}

// Snapshot returns the current record of id.
func (l *Ledger) Snapshot(id string) (Snapshot, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return Snapshot{}, false
	}
	return a.snapshot(), true
}

// Equipped returns the catalog entry id is driving.
func (l *Ledger) Equipped(id string) (Vehicle, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return Vehicle{}, false
	}
	return l.catalog.Get(a.equipped)
}

// Purchase buys and equips item. It fails without side effects when the item
// does not exist, is already owned, or is unaffordable.
func (l *Ledger) Purchase(id string, item int) (Snapshot, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return Snapshot{}, false
	}
	v, ok := l.catalog.Get(item)
	if !ok || a.owned[item] || a.balance < v.Price {
		return Snapshot{}, false
	}
	a.balance -= v.Price
	a.owned[item] = true
	a.equipped = item
	return a.snapshot(), true
}

// Equip selects an owned vehicle.
func (l *Ledger) Equip(id string, item int) bool {
	a, ok := l.accounts[id]
	if !ok || !a.owned[item] {
		return false
	}
	a.equipped = item
	return true
}

// Payout credits amount. Negative amounts are refused.
func (l *Ledger) Payout(id string, amount int) (Snapshot, bool) {
	a, ok := l.accounts[id]
	if !ok || amount < 0 {
		return Snapshot{}, false
	}
	a.balance += amount
	return a.snapshot(), true
}

// Len is the number of open accounts.
func (l *Ledger) Len() int { return len(l.accounts) }
