package models

import "fmt"

// makiRoll is the only card type whose artwork depends on its points.
const makiRoll = "Maki Roll"

// Card is a single card as sent by the server. Identifiers are populated
// depending on where the card currently lives (hand or table).
type Card struct {
	TableCardID             FlexInt `json:"tablecard_id,omitempty"`
	SessionCardID           FlexInt `json:"sessioncard_id,omitempty"`
	PlayerCardSessionCardID FlexInt `json:"playercard_sessioncardid,omitempty"`
	CardID                  FlexInt `json:"card_id,omitempty"`
	Type                    string  `json:"card_type"`
	Description             string  `json:"card_description,omitempty"`
	Points                  FlexInt `json:"points,omitempty"`
}

// CardNode is the wire form of a stack: a card plus the card directly under it.
// The chain runs top to bottom; the node with no Under is the physical bottom.
type CardNode struct {
	Card
	Under *CardNode `json:"under_table_card,omitempty"`
}

// CardRef is a card identifier qualified by the wire field it came from. Ids
// from different fields are unrelated even when numerically equal.
type CardRef struct {
	Field string
	ID    int64
}

// Ref returns the most specific identifier the server supplied for the card.
// A card with none yields the zero CardRef.
func (c Card) Ref() CardRef {
	switch {
	case c.TableCardID != 0:
		return CardRef{Field: "tablecard_id", ID: c.TableCardID.Int64()}
	case c.PlayerCardSessionCardID != 0:
		return CardRef{Field: "playercard_sessioncardid", ID: c.PlayerCardSessionCardID.Int64()}
	case c.SessionCardID != 0:
		return CardRef{Field: "sessioncard_id", ID: c.SessionCardID.Int64()}
	}
	return CardRef{}
}

// Key returns the numeric part of Ref, or 0 if the card carries no id.
func (c Card) Key() int64 { return c.Ref().ID }

// ImageName returns the artwork name used by presentation layers, e.g.
// "Tempura" or "Maki Roll 2".
func (c Card) ImageName() string {
	if c.Type == makiRoll {
		return fmt.Sprintf("%s %d", c.Type, c.Points.Int64())
	}
	return c.Type
}

// TableSeat is one participant's played cards, each a stack.
type TableSeat struct {
	PlayerID FlexInt     `json:"player_id"`
	Username string      `json:"username"`
	Cards    []*CardNode `json:"cards"`
}
