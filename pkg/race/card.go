// Package race implements the authoritative rules engine for the racing
// card game: cards and decks, per-player state, and the nine-phase round
// state machine. The engine holds no locks and performs no I/O; callers
// serialize access per match.
package race

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the card variants.
type Kind string

const (
	KindSpeed   Kind = "speed"
	KindHeat    Kind = "heat"
	KindStress  Kind = "stress"
	KindUpgrade Kind = "upgrade"
)

// UpgradeType discriminates upgrade cards.
type UpgradeType string

const (
	UpgradeSpeed0       UpgradeType = "speed-0"
	UpgradeSpeed5       UpgradeType = "speed-5"
	UpgradeStartingHeat UpgradeType = "starting-heat"
)

// Card is a tagged variant: exactly one kind, with a value for speed cards
// and a subtype for upgrades.
type Card struct {
	kind    Kind
	value   int
	upgrade UpgradeType
}

// SpeedCard returns a speed card of the given value (1..4).
func SpeedCard(value int) Card {
	return Card{kind: KindSpeed, value: value}
}

// HeatCard returns a heat card.
func HeatCard() Card {
	return Card{kind: KindHeat}
}

// StressCard returns a stress card.
func StressCard() Card {
	return Card{kind: KindStress}
}

// UpgradeCard returns an upgrade card of the given subtype.
func UpgradeCard(subtype UpgradeType) Card {
	return Card{kind: KindUpgrade, upgrade: subtype}
}

// Kind returns the card's kind tag.
func (c Card) Kind() Kind {
	return c.kind
}

// Upgrade returns the upgrade subtype, empty for non-upgrades.
func (c Card) Upgrade() UpgradeType {
	return c.upgrade
}

// IsSpeed reports whether the card is a plain speed card.
func (c Card) IsSpeed() bool {
	return c.kind == KindSpeed
}

// IsHeat reports whether the card is a heat card.
func (c Card) IsHeat() bool {
	return c.kind == KindHeat
}

// IsStress reports whether the card is a stress card.
func (c Card) IsStress() bool {
	return c.kind == KindStress
}

// Playable reports whether the card may be chosen during card selection.
// Heat and stress are never playable, and neither is the starting-heat
// upgrade; speed cards and the other upgrades are.
func (c Card) Playable() bool {
	switch c.kind {
	case KindHeat, KindStress:
		return false
	case KindUpgrade:
		return c.upgrade != UpgradeStartingHeat
	default:
		return true
	}
}

// MovementValue returns the card's contribution to round speed when
// revealed. Stress cards have no static value (they resolve by flipping the
// draw pile), so ok is false for them.
func (c Card) MovementValue() (value int, ok bool) {
	switch c.kind {
	case KindSpeed:
		return c.value, true
	case KindUpgrade:
		switch c.upgrade {
		case UpgradeSpeed0:
			return 0, true
		case UpgradeSpeed5:
			return 5, true
		}
		return 0, true
	case KindHeat:
		return 0, true
	default:
		return 0, false
	}
}

// String returns a short human-readable representation.
func (c Card) String() string {
	switch c.kind {
	case KindSpeed:
		return fmt.Sprintf("speed-%d", c.value)
	case KindUpgrade:
		return string(c.upgrade)
	default:
		return string(c.kind)
	}
}

// cardJSON is the wire form of a card.
type cardJSON struct {
	Kind    string `json:"kind"`
	Value   int    `json:"value,omitempty"`
	Subtype string `json:"subtype,omitempty"`
}

// MarshalJSON implements json.Marshaler for Card.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{
		Kind:    string(c.kind),
		Value:   c.value,
		Subtype: string(c.upgrade),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Card.
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj cardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}

	switch Kind(cj.Kind) {
	case KindSpeed:
		if cj.Value < 1 || cj.Value > 4 {
			return fmt.Errorf("invalid speed card value: %d", cj.Value)
		}
		*c = SpeedCard(cj.Value)
	case KindHeat:
		*c = HeatCard()
	case KindStress:
		*c = StressCard()
	case KindUpgrade:
		switch UpgradeType(cj.Subtype) {
		case UpgradeSpeed0, UpgradeSpeed5, UpgradeStartingHeat:
			*c = UpgradeCard(UpgradeType(cj.Subtype))
		default:
			return fmt.Errorf("invalid upgrade subtype: %s", cj.Subtype)
		}
	default:
		return fmt.Errorf("invalid card kind: %s", cj.Kind)
	}
	return nil
}
