// Package assets maps the fixed download slots onto blob storage.
package assets

import (
	"strings"
)

// Slot is one downloadable APK position.
type Slot struct {
	ID   string
	Name string
}

var slots = []Slot{
	{ID: "betwinner", Name: "Betwinner"},
	{ID: "1xbet", Name: "1xBet"},
	{ID: "winwin", Name: "WinWin"},
	{ID: "dbbet", Name: "DBBet"},
	{ID: "megapari", Name: "Mega Pari"},
	{ID: "888starz", Name: "888Starz"},
	{ID: "goldpari", Name: "GoldPari"},
	{ID: "lucypari", Name: "LucyPari"},
}

// Slots returns the catalog in display order.
func Slots() []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out
}

// Lookup finds a slot by id, ignoring case and surrounding spaces.
func Lookup(id string) (Slot, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// IDs returns the slot ids joined for help texts.
func IDs() string {
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return strings.Join(ids, ", ")
}

// FileName is the name a slot's APK is sent under.
func (s Slot) FileName() string { return s.ID + ".apk" }
