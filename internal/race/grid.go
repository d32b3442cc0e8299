package race

// Slot is a starting grid offset relative to the spawn point: X is lateral,
// Z is the distance back along the track.
type Slot struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// gridSlots lines entrants up two abreast in join order.
func gridSlots(entrants []string, spacing float64) map[string]Slot {
	grid := make(map[string]Slot, len(entrants))
	for i, id := range entrants {
		row, col := i/2, i%2
		grid[id] = Slot{
			X: (float64(col) - 0.5) * spacing,
			Z: float64(row) * spacing,
		}
	}
	return grid
}
