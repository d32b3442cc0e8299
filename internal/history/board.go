package history

import (
	"bytes"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	colRace   = "Race"
	colEnded  = "Ended"
	colPlace  = "Place"
	colRacer  = "Racer"
	colPayout = "Payout"
)

// RaceBoard renders the classification of one race.
func RaceBoard(rec RaceRecord) string {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{colPlace, colRacer, colPayout})
	for _, f := range rec.Finishers {
		t.AppendRow(table.Row{f.Place, displayName(f), f.Payout})
	}
	if rec.Cancelled {
		t.AppendFooter(table.Row{"", "cancelled", ""})
	}
	t.Render()
	return b.String()
}

// Board renders several races, one row per finisher.
func Board(records []RaceRecord) string {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{colRace, colEnded, colPlace, colRacer, colPayout})
	for _, rec := range records {
		short := rec.ID
		if len(short) > 8 {
			short = short[:8]
		}
		ended := rec.EndedAt.UTC().Format(time.TimeOnly)
		if len(rec.Finishers) == 0 {
			t.AppendRow(table.Row{short, ended, "-", "no finishers", 0})
		}
		for _, f := range rec.Finishers {
			t.AppendRow(table.Row{short, ended, f.Place, displayName(f), f.Payout})
		}
		t.AppendSeparator()
	}
	t.Render()
	return b.String()
}

func displayName(f Finisher) string {
	if f.Name != "" {
		return f.Name
	}
	return f.Participant
}
