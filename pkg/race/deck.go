package race

import (
	"math/rand"
)

// Deck is a player's draw and discard piles. Drawing pulls from the top of
// the draw pile; an empty draw pile shuffles the discard pile in place and
// keeps drawing from it.
type Deck struct {
	draw    []Card
	discard []Card
	rng     *rand.Rand
}

// StartingDeck returns the per-player starting composition: three speed
// cards of each value 1..4, the three starting upgrades, and stressCount
// stress cards. Heat cards never appear in the starting deck.
func StartingDeck(stressCount int) []Card {
	cards := make([]Card, 0, 15+stressCount)
	for value := 1; value <= 4; value++ {
		for i := 0; i < 3; i++ {
			cards = append(cards, SpeedCard(value))
		}
	}
	cards = append(cards,
		UpgradeCard(UpgradeSpeed0),
		UpgradeCard(UpgradeSpeed5),
		UpgradeCard(UpgradeStartingHeat),
	)
	for i := 0; i < stressCount; i++ {
		cards = append(cards, StressCard())
	}
	return cards
}

// NewDeck creates a deck from the given cards, shuffled with the supplied
// room RNG. The slice is copied.
func NewDeck(cards []Card, rng *rand.Rand) *Deck {
	d := &Deck{
		draw: make([]Card, len(cards)),
		rng:  rng,
	}
	copy(d.draw, cards)
	d.shuffleDraw()
	return d
}

func (d *Deck) shuffleDraw() {
	d.rng.Shuffle(len(d.draw), func(i, j int) {
		d.draw[i], d.draw[j] = d.draw[j], d.draw[i]
	})
}

// recycle shuffles the discard pile in place and makes it the new draw
// pile. Only called when the draw pile is empty.
func (d *Deck) recycle() {
	d.draw = d.discard
	d.discard = nil
	d.shuffleDraw()
}

// Draw removes and returns the top card of the draw pile, recycling the
// discard pile when the draw pile runs out. ok is false when both piles
// are empty.
func (d *Deck) Draw() (Card, bool) {
	if len(d.draw) == 0 {
		if len(d.discard) == 0 {
			return Card{}, false
		}
		d.recycle()
	}
	card := d.draw[0]
	d.draw = d.draw[1:]
	return card, true
}

// DrawN draws up to n cards, returning what is available.
func (d *Deck) DrawN(n int) []Card {
	cards := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		card, ok := d.Draw()
		if !ok {
			break
		}
		cards = append(cards, card)
	}
	return cards
}

// Discard places cards on the discard pile.
func (d *Deck) Discard(cards ...Card) {
	d.discard = append(d.discard, cards...)
}

// FlipUntilSpeed flips cards from the top of the draw pile (recycling the
// discard pile as needed) until a speed card appears. Every flipped card,
// the terminating speed card included, ends up in the discard pile. ok is
// false when the piles hold no speed card at all; flipped cards are still
// discarded in that case.
func (d *Deck) FlipUntilSpeed() (value int, flipped []Card, ok bool) {
	// Bound the scan by the total cards available at entry so a deck
	// without speed cards cannot recycle forever.
	limit := len(d.draw) + len(d.discard)
	for i := 0; i < limit; i++ {
		card, drew := d.Draw()
		if !drew {
			break
		}
		flipped = append(flipped, card)
		if card.IsSpeed() {
			d.Discard(flipped...)
			return card.value, flipped, true
		}
	}
	d.Discard(flipped...)
	return 0, flipped, false
}

// NewDeckFromState rebuilds a deck from a snapshot, preserving pile order.
func NewDeckFromState(state DeckState, rng *rand.Rand) *Deck {
	d := &Deck{
		draw:    make([]Card, len(state.Draw)),
		discard: make([]Card, len(state.Discard)),
		rng:     rng,
	}
	copy(d.draw, state.Draw)
	copy(d.discard, state.Discard)
	return d
}

// DrawSize returns the number of cards in the draw pile.
func (d *Deck) DrawSize() int {
	return len(d.draw)
}

// DiscardSize returns the number of cards in the discard pile.
func (d *Deck) DiscardSize() int {
	return len(d.discard)
}

// DiscardCards returns a copy of the discard pile contents. The discard
// pile is open information to its owner.
func (d *Deck) DiscardCards() []Card {
	cards := make([]Card, len(d.discard))
	copy(cards, d.discard)
	return cards
}

// drawCards exposes a copy of the draw pile for invariant checks in tests.
func (d *Deck) drawCards() []Card {
	cards := make([]Card, len(d.draw))
	copy(cards, d.draw)
	return cards
}
