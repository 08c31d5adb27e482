package race

// State partitioning: the authoritative match is split into per-recipient
// views. A recipient sees their own cards in full (draw pile as a count
// only) and nothing but counts for everyone else. Partitioning is a pure
// function of the match state.

// CardCounts is the opaque container summary shown for opponents.
type CardCounts struct {
	Hand    int `json:"hand"`
	Draw    int `json:"draw"`
	Discard int `json:"discard"`
	Engine  int `json:"engine"`
	Played  int `json:"played"`
}

// SelfView is the full snapshot of the recipient's own car.
type SelfView struct {
	ID                 string `json:"id"`
	Slot               int    `json:"slot"`
	Gear               int    `json:"gear"`
	Position           int    `json:"position"` // loop position
	Laps               int    `json:"laps"`
	Speed              int    `json:"speed"`
	HasBoosted         bool   `json:"hasBoosted"`
	AdrenalineCooldown int    `json:"adrenalineCooldown"`
	CooldownRemaining  int    `json:"cooldownRemaining"`
	ClutteredHand      bool   `json:"clutteredHand,omitempty"`
	SpunOut            bool   `json:"spunOut,omitempty"`
	Hand               []Card `json:"hand"`
	Discard            []Card `json:"discard"`
	Engine             []Card `json:"engine"`
	Played             []Card `json:"played"`
	DrawPileCount      int    `json:"drawPileCount"`
}

// OpponentView is the redacted snapshot of another car: scalars plus
// container counts, never card identities.
type OpponentView struct {
	Slot       int        `json:"slot"`
	Gear       int        `json:"gear"`
	Position   int        `json:"position"`
	Laps       int        `json:"laps"`
	Speed      int        `json:"speed"`
	HasBoosted bool       `json:"hasBoosted"`
	SpunOut    bool       `json:"spunOut,omitempty"`
	Counts     CardCounts `json:"counts"`
}

// PlayerInfo is display metadata for a slot, filled in by the room layer.
type PlayerInfo struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Connected bool   `json:"connected"`
}

// ClientGameState is the per-recipient view of a match.
type ClientGameState struct {
	Round        int            `json:"round"`
	Phase        Phase          `json:"phase"`
	PhaseClass   PhaseClass     `json:"phaseClass"`
	ActivePlayer int            `json:"activePlayer"` // slot, -1 when not sequential
	TurnOrder    []int          `json:"turnOrder"`
	LapTarget    int            `json:"lapTarget"`
	Status       RaceStatus     `json:"status"`
	TotalSpaces  int            `json:"totalSpaces"`
	Weather      Weather        `json:"weather,omitempty"`
	Self         SelfView       `json:"self"`
	Opponents    []OpponentView `json:"opponents"`
	Players      []PlayerInfo   `json:"players,omitempty"`
}

// PartitionFor builds the view of m for the given recipient slot.
func PartitionFor(m *Match, slot int) (ClientGameState, error) {
	self, err := m.PlayerBySlot(slot)
	if err != nil {
		return ClientGameState{}, err
	}
	n := m.track.TotalSpaces

	view := ClientGameState{
		Round:        m.Round,
		Phase:        m.Phase,
		PhaseClass:   m.Phase.Class(),
		ActivePlayer: m.ActiveSlot(),
		TurnOrder:    append([]int(nil), m.TurnOrder...),
		LapTarget:    m.lapTarget,
		Status:       m.Status,
		TotalSpaces:  n,
		Weather:      m.weather,
		Self: SelfView{
			ID:                 self.ID,
			Slot:               self.Slot,
			Gear:               self.Gear,
			Position:           self.LoopPosition(n),
			Laps:               self.Laps,
			Speed:              self.Speed,
			HasBoosted:         self.HasBoosted,
			AdrenalineCooldown: self.AdrenalineCooldown,
			CooldownRemaining:  m.CooldownLimit(slot),
			ClutteredHand:      self.ClutteredHand,
			SpunOut:            self.SpunOut,
			Hand:               append([]Card(nil), self.Hand...),
			Discard:            self.Deck.DiscardCards(),
			Engine:             append([]Card(nil), self.Engine...),
			Played:             append([]Card(nil), self.Played...),
			DrawPileCount:      self.Deck.DrawSize(),
		},
	}

	for _, p := range m.Players {
		if p.Slot == slot {
			continue
		}
		view.Opponents = append(view.Opponents, OpponentView{
			Slot:       p.Slot,
			Gear:       p.Gear,
			Position:   p.LoopPosition(n),
			Laps:       p.Laps,
			Speed:      p.Speed,
			HasBoosted: p.HasBoosted,
			SpunOut:    p.SpunOut,
			Counts: CardCounts{
				Hand:    len(p.Hand),
				Draw:    p.Deck.DrawSize(),
				Discard: p.Deck.DiscardSize(),
				Engine:  len(p.Engine),
				Played:  len(p.Played),
			},
		})
	}
	return view, nil
}
