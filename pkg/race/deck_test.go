package race

import (
	"encoding/json"
	"math/rand"
	"testing"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestStartingDeckComposition(t *testing.T) {
	cards := StartingDeck(3)
	if len(cards) != 18 {
		t.Fatalf("expected 18 cards, got %d", len(cards))
	}

	speedCounts := make(map[int]int)
	upgrades := make(map[UpgradeType]int)
	stress := 0
	for _, c := range cards {
		switch c.Kind() {
		case KindSpeed:
			v, _ := c.MovementValue()
			speedCounts[v]++
		case KindUpgrade:
			upgrades[c.Upgrade()]++
		case KindStress:
			stress++
		case KindHeat:
			t.Error("heat cards must never appear in the starting deck")
		}
	}
	for v := 1; v <= 4; v++ {
		if speedCounts[v] != 3 {
			t.Errorf("expected 3 speed-%d cards, got %d", v, speedCounts[v])
		}
	}
	for _, u := range []UpgradeType{UpgradeSpeed0, UpgradeSpeed5, UpgradeStartingHeat} {
		if upgrades[u] != 1 {
			t.Errorf("expected one %s upgrade, got %d", u, upgrades[u])
		}
	}
	if stress != 3 {
		t.Errorf("expected 3 stress cards, got %d", stress)
	}
}

func TestDeckSeededShuffleIsDeterministic(t *testing.T) {
	d1 := NewDeck(StartingDeck(3), rand.New(rand.NewSource(7)))
	d2 := NewDeck(StartingDeck(3), rand.New(rand.NewSource(7)))

	for d1.DrawSize() > 0 {
		c1, _ := d1.Draw()
		c2, _ := d2.Draw()
		if c1 != c2 {
			t.Fatalf("same seed produced different orders: %s vs %s", c1, c2)
		}
	}
}

func TestDeckDrawRecyclesDiscard(t *testing.T) {
	d := NewDeck([]Card{SpeedCard(1), SpeedCard(2)}, testRNG())

	c1, _ := d.Draw()
	c2, _ := d.Draw()
	d.Discard(c1, c2)

	if d.DrawSize() != 0 || d.DiscardSize() != 2 {
		t.Fatalf("unexpected pile sizes: draw %d discard %d", d.DrawSize(), d.DiscardSize())
	}

	// Next draw recycles the discard pile.
	if _, ok := d.Draw(); !ok {
		t.Fatal("expected a card after recycling the discard pile")
	}
	if d.DiscardSize() != 0 {
		t.Errorf("discard pile should be empty after recycle, has %d", d.DiscardSize())
	}

	// Exhaust everything.
	d.Draw()
	if _, ok := d.Draw(); ok {
		t.Error("expected failure drawing from fully exhausted deck")
	}
}

func TestDeckDrawNPartial(t *testing.T) {
	d := NewDeck([]Card{SpeedCard(1), SpeedCard(2), SpeedCard(3)}, testRNG())
	cards := d.DrawN(5)
	if len(cards) != 3 {
		t.Errorf("expected partial draw of 3, got %d", len(cards))
	}
}

func TestFlipUntilSpeed(t *testing.T) {
	d := NewDeckFromState(DeckState{
		Draw: []Card{HeatCard(), StressCard(), SpeedCard(3), SpeedCard(1)},
	}, testRNG())

	value, flipped, ok := d.FlipUntilSpeed()
	if !ok {
		t.Fatal("expected to find a speed card")
	}
	if value != 3 {
		t.Errorf("expected flipped speed 3, got %d", value)
	}
	if len(flipped) != 3 {
		t.Errorf("expected 3 flipped cards, got %d", len(flipped))
	}
	// Flipped cards, terminator included, all land in discard.
	if d.DiscardSize() != 3 {
		t.Errorf("expected 3 cards in discard, got %d", d.DiscardSize())
	}
	if d.DrawSize() != 1 {
		t.Errorf("expected 1 card left in draw, got %d", d.DrawSize())
	}
}

func TestFlipUntilSpeedNoSpeedCard(t *testing.T) {
	d := NewDeckFromState(DeckState{
		Draw:    []Card{HeatCard(), StressCard()},
		Discard: []Card{HeatCard()},
	}, testRNG())

	value, _, ok := d.FlipUntilSpeed()
	if ok {
		t.Error("expected no speed card to be found")
	}
	if value != 0 {
		t.Errorf("expected zero value, got %d", value)
	}
	// Must terminate and keep every card.
	if d.DrawSize()+d.DiscardSize() != 3 {
		t.Errorf("cards lost during speedless flip: %d remain", d.DrawSize()+d.DiscardSize())
	}
}

func TestCardPlayability(t *testing.T) {
	cases := []struct {
		card Card
		want bool
	}{
		{SpeedCard(1), true},
		{SpeedCard(4), true},
		{HeatCard(), false},
		{StressCard(), false},
		{UpgradeCard(UpgradeSpeed0), true},
		{UpgradeCard(UpgradeSpeed5), true},
		{UpgradeCard(UpgradeStartingHeat), false},
	}
	for _, tc := range cases {
		if got := tc.card.Playable(); got != tc.want {
			t.Errorf("%s: playable = %v, want %v", tc.card, got, tc.want)
		}
	}
}

func TestCardJSONRoundTrip(t *testing.T) {
	cards := []Card{
		SpeedCard(2),
		HeatCard(),
		StressCard(),
		UpgradeCard(UpgradeSpeed5),
		UpgradeCard(UpgradeStartingHeat),
	}
	data, err := json.Marshal(cards)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded []Card
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for i, c := range cards {
		if decoded[i] != c {
			t.Errorf("card %d: expected %s, got %s", i, c, decoded[i])
		}
	}

	var bad Card
	if err := json.Unmarshal([]byte(`{"kind":"speed","value":9}`), &bad); err == nil {
		t.Error("expected error for out-of-range speed value")
	}
	if err := json.Unmarshal([]byte(`{"kind":"banana"}`), &bad); err == nil {
		t.Error("expected error for unknown kind")
	}
}
