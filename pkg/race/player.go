package race

// Gear bounds and per-gear tables. Gears are 1..4; the required card count
// equals the gear, cooldown slots shrink as gears climb, and spinout stress
// grows with them.
const (
	MinGear  = 1
	MaxGear  = 4
	HandSize = 7

	// StartingEngineHeat is the number of heat cards loaded into the
	// engine before the race (weather may adjust it).
	StartingEngineHeat = 6

	// DefaultStressCount is the number of stress cards in the starting
	// deck when the room config does not override it.
	DefaultStressCount = 3
)

// cooldownSlots is the base number of heat cards a player may move from
// hand to engine during react, per gear.
var cooldownSlots = map[int]int{1: 3, 2: 1, 3: 0, 4: 0}

// spinoutStress is the number of stress cards added to the discard pile on
// a spinout, per gear at the moment of the spinout.
var spinoutStress = map[int]int{1: 1, 2: 1, 3: 2, 4: 2}

// CardsRequired returns the number of cards a player in the given gear must
// play during the play-cards phase.
func CardsRequired(gear int) int {
	return gear
}

// Player is the authoritative per-player match state. All positions are
// absolute: they accumulate past the loop length and only a spinout moves
// them backwards.
type Player struct {
	ID   string
	Slot int

	Gear     int
	Hand     []Card
	Deck     *Deck // draw + discard piles
	Engine   []Card
	Played   []Card
	Position int
	PrevPosition int
	Laps     int

	// Per-round scratch state, reset at replenish.
	Speed              int
	HasBoosted         bool
	AdrenalineCooldown int
	CooldownUsed       int
	ClutteredHand      bool
	SpunOut            bool
}

// LoopPosition maps the absolute position onto the loop.
func (p *Player) LoopPosition(totalSpaces int) int {
	return ((p.Position % totalSpaces) + totalSpaces) % totalSpaces
}

// prevLoopPosition maps the round-start snapshot onto the loop.
func (p *Player) prevLoopPosition(totalSpaces int) int {
	return ((p.PrevPosition % totalSpaces) + totalSpaces) % totalSpaces
}

// EngineHeat counts the heat cards in the engine. The engine only ever
// holds heat cards, but counting keeps the invariant explicit.
func (p *Player) EngineHeat() int {
	n := 0
	for _, c := range p.Engine {
		if c.IsHeat() {
			n++
		}
	}
	return n
}

// PlayableCount counts the playable cards in hand.
func (p *Player) PlayableCount() int {
	n := 0
	for _, c := range p.Hand {
		if c.Playable() {
			n++
		}
	}
	return n
}

// removeEngineHeat moves n heat cards from the engine to the discard pile.
// The caller must have checked availability.
func (p *Player) removeEngineHeat(n int) {
	for i := 0; i < n; i++ {
		for j, c := range p.Engine {
			if c.IsHeat() {
				p.Engine = append(p.Engine[:j], p.Engine[j+1:]...)
				p.Deck.Discard(HeatCard())
				break
			}
		}
	}
}

// removeHandCards removes the cards at the given indexes from the hand and
// returns them in index order. Indexes must be valid and unique; callers
// validate before mutating.
func (p *Player) removeHandCards(indexes []int) []Card {
	removed := make([]Card, 0, len(indexes))
	for _, idx := range indexes {
		removed = append(removed, p.Hand[idx])
	}
	// Delete from the back so earlier indexes stay valid.
	sorted := append([]int(nil), indexes...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] > sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	for _, idx := range sorted {
		p.Hand = append(p.Hand[:idx], p.Hand[idx+1:]...)
	}
	return removed
}

// cardMultiset returns kind/value counts across every container plus the
// played stack. Used by conservation checks.
func (p *Player) cardMultiset() map[string]int {
	counts := make(map[string]int)
	add := func(cards []Card) {
		for _, c := range cards {
			counts[c.String()]++
		}
	}
	add(p.Hand)
	add(p.Engine)
	add(p.Played)
	add(p.Deck.drawCards())
	add(p.Deck.DiscardCards())
	return counts
}
