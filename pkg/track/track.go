// Package track models immutable race track geometry: a closed loop of
// spaces with corners, a start/finish line, and the traversal queries the
// rules engine needs.
package track

import "fmt"

// Corner is a speed-limited point on the loop.
type Corner struct {
	ID         int `json:"id"`
	Position   int `json:"position"`
	SpeedLimit int `json:"speedLimit"`
}

// Sector is the stretch of track between two consecutive corners. From is
// exclusive (the corner behind), To inclusive (the corner ahead).
type Sector struct {
	From Corner
	To   Corner
}

// Track is an immutable closed loop. Positions are in [0, TotalSpaces).
type Track struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TotalSpaces     int      `json:"totalSpaces"`
	StartFinishLine int      `json:"startFinishLine"`
	Corners         []Corner `json:"corners"`
}

// New validates and returns a track. Corners must be sorted by position and
// lie on the loop; speed limits must be in [1,7].
func New(id, name string, totalSpaces, startFinish int, corners []Corner) (*Track, error) {
	if totalSpaces <= 0 {
		return nil, fmt.Errorf("track %s: totalSpaces must be positive, got %d", id, totalSpaces)
	}
	if startFinish < 0 || startFinish >= totalSpaces {
		return nil, fmt.Errorf("track %s: start/finish line %d outside loop", id, startFinish)
	}
	prev := -1
	for _, c := range corners {
		if c.Position < 0 || c.Position >= totalSpaces {
			return nil, fmt.Errorf("track %s: corner %d at %d outside loop", id, c.ID, c.Position)
		}
		if c.Position <= prev {
			return nil, fmt.Errorf("track %s: corners must be strictly ordered by position", id)
		}
		if c.SpeedLimit < 1 || c.SpeedLimit > 7 {
			return nil, fmt.Errorf("track %s: corner %d speed limit %d out of range", id, c.ID, c.SpeedLimit)
		}
		prev = c.Position
	}
	cs := make([]Corner, len(corners))
	copy(cs, corners)
	return &Track{
		ID:              id,
		Name:            name,
		TotalSpaces:     totalSpaces,
		StartFinishLine: startFinish,
		Corners:         cs,
	}, nil
}

func (t *Track) checkPos(pos int) error {
	if pos < 0 || pos >= t.TotalSpaces {
		return fmt.Errorf("position %d outside loop of %d spaces", pos, t.TotalSpaces)
	}
	return nil
}

// Advance returns the loop position n spaces past from.
func (t *Track) Advance(from, n int) (int, error) {
	if err := t.checkPos(from); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("cannot advance a negative distance %d", n)
	}
	return (from + n) % t.TotalSpaces, nil
}

// SpacesTraversed returns the ordered loop indexes visited moving forward
// from 'from' to 'to', excluding from and including to. Equal endpoints
// traverse nothing.
func (t *Track) SpacesTraversed(from, to int) ([]int, error) {
	if err := t.checkPos(from); err != nil {
		return nil, err
	}
	if err := t.checkPos(to); err != nil {
		return nil, err
	}
	if from == to {
		return nil, nil
	}
	n := (to - from + t.TotalSpaces) % t.TotalSpaces
	spaces := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		spaces = append(spaces, (from+i)%t.TotalSpaces)
	}
	return spaces, nil
}

// CornersCrossed returns the corners whose positions lie on the traversal
// from 'from' to 'to', in traversal order.
func (t *Track) CornersCrossed(from, to int) ([]Corner, error) {
	spaces, err := t.SpacesTraversed(from, to)
	if err != nil {
		return nil, err
	}
	byPos := make(map[int]Corner, len(t.Corners))
	for _, c := range t.Corners {
		byPos[c.Position] = c
	}
	var crossed []Corner
	for _, s := range spaces {
		if c, ok := byPos[s]; ok {
			crossed = append(crossed, c)
		}
	}
	return crossed, nil
}

// CrossesFinishLine reports whether the traversal from 'from' to 'to'
// passes the start/finish line.
func (t *Track) CrossesFinishLine(from, to int) (bool, error) {
	spaces, err := t.SpacesTraversed(from, to)
	if err != nil {
		return false, err
	}
	for _, s := range spaces {
		if s == t.StartFinishLine {
			return true, nil
		}
	}
	return false, nil
}

// SectorAt returns the sector containing pos: the stretch after the nearest
// corner at-or-behind pos up to the next corner ahead. Tracks with fewer
// than two corners have a single degenerate sector spanning the loop.
func (t *Track) SectorAt(pos int) (Sector, error) {
	if err := t.checkPos(pos); err != nil {
		return Sector{}, err
	}
	if len(t.Corners) == 0 {
		return Sector{}, fmt.Errorf("track %s has no corners", t.ID)
	}
	if len(t.Corners) == 1 {
		return Sector{From: t.Corners[0], To: t.Corners[0]}, nil
	}
	// Corners are sorted; find the last corner with Position <= pos,
	// wrapping to the final corner for positions before the first.
	idx := len(t.Corners) - 1
	for i, c := range t.Corners {
		if c.Position <= pos {
			idx = i
		} else {
			break
		}
	}
	if t.Corners[0].Position > pos {
		idx = len(t.Corners) - 1
	}
	next := (idx + 1) % len(t.Corners)
	return Sector{From: t.Corners[idx], To: t.Corners[next]}, nil
}

// CornerByID looks a corner up by id.
func (t *Track) CornerByID(id int) (Corner, bool) {
	for _, c := range t.Corners {
		if c.ID == id {
			return c, true
		}
	}
	return Corner{}, false
}
