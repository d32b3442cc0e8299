// Package economy holds the vehicle catalog and the per participant ledger
// of money, owned vehicles and the equipped vehicle.
package economy

// Vehicle is one catalog entry.
type Vehicle struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Price       int     `json:"price"`
	SpeedFactor float64 `json:"speed"`
	GripFactor  float64 `json:"grip"`
}

// DefaultVehicleID is free and always owned.
const DefaultVehicleID = 0

// Catalog is a fixed, id indexed vehicle table.
type Catalog []Vehicle

// DefaultCatalog is the shop every server offers.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: 0, Name: "Rookie Kart", Price: 0, SpeedFactor: 1.0, GripFactor: 0.94},
		{ID: 1, Name: "Street Tuner", Price: 500, SpeedFactor: 1.3, GripFactor: 0.91},
		{ID: 2, Name: "Rally Beast", Price: 1500, SpeedFactor: 1.5, GripFactor: 0.88},
		{ID: 3, Name: "F1 Prototype", Price: 5000, SpeedFactor: 2.1, GripFactor: 0.98},
	}
}

// Get looks a vehicle up by id.
func (c Catalog) Get(id int) (Vehicle, bool) {
	for _, v := range c {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}
