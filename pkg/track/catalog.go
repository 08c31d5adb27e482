package track

import "fmt"

// Built-in tracks. Geometry is loaded once at startup and shared read-only
// between rooms.

func mustNew(id, name string, total, startFinish int, corners []Corner) *Track {
	t, err := New(id, name, total, startFinish, corners)
	if err != nil {
		panic(err)
	}
	return t
}

var builtin = map[string]*Track{
	"gp-48": mustNew("gp-48", "Grand Prix Loop", 48, 0, []Corner{
		{ID: 1, Position: 10, SpeedLimit: 3},
		{ID: 2, Position: 22, SpeedLimit: 4},
		{ID: 3, Position: 31, SpeedLimit: 2},
		{ID: 4, Position: 42, SpeedLimit: 5},
	}),
	"endurance-60": mustNew("endurance-60", "Endurance Circuit", 60, 0, []Corner{
		{ID: 1, Position: 8, SpeedLimit: 4},
		{ID: 2, Position: 17, SpeedLimit: 2},
		{ID: 3, Position: 29, SpeedLimit: 3},
		{ID: 4, Position: 40, SpeedLimit: 6},
		{ID: 5, Position: 52, SpeedLimit: 3},
	}),
}

// Lookup resolves a track id against the built-in catalog.
func Lookup(id string) (*Track, error) {
	t, ok := builtin[id]
	if !ok {
		return nil, fmt.Errorf("unknown track %q", id)
	}
	return t, nil
}

// IDs returns the catalog's track ids.
func IDs() []string {
	ids := make([]string, 0, len(builtin))
	for id := range builtin {
		ids = append(ids, id)
	}
	return ids
}
