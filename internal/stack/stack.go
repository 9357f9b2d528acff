// internal/stack/stack.go
package stack

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/sushi/internal/models"
)

// ErrMalformedChain is returned when an "under" chain revisits a card.
var ErrMalformedChain = errors.New("malformed card chain")

// Display is a stack ordered from the physical bottom card to the top card.
// It is an owned copy; nothing in it aliases the wire chain it was built from.
type Display []models.Card

// Top returns the top card of the stack.
func (d Display) Top() (models.Card, bool) {
	if len(d) == 0 {
		return models.Card{}, false
	}
	return d[len(d)-1], true
}

// Bottom returns the physical bottom card, the one that had no "under" card.
func (d Display) Bottom() (models.Card, bool) {
	if len(d) == 0 {
		return models.Card{}, false
	}
	return d[0], true
}

// Reconstruct converts a wire chain, given by its top node, into a Display.
// The input is left untouched. A chain that revisits a node, by pointer or by a
// non-zero card identifier, yields ErrMalformedChain.
func Reconstruct(top *models.CardNode) (Display, error) {
	if top == nil {
		return nil, nil
	}

	seenNodes := make(map[*models.CardNode]struct{})
	seenRefs := make(map[models.CardRef]struct{})

	// collect top to bottom
	var chain Display
	for n := top; n != nil; n = n.Under {
		if _, ok := seenNodes[n]; ok {
			return nil, fmt.Errorf("%w: node revisited after %d cards", ErrMalformedChain, len(chain))
		}
		seenNodes[n] = struct{}{}

		if ref := n.Ref(); ref.ID != 0 {
			if _, ok := seenRefs[ref]; ok {
				return nil, fmt.Errorf("%w: card %s=%d appears twice", ErrMalformedChain, ref.Field, ref.ID)
			}
			seenRefs[ref] = struct{}{}
		}
		chain = append(chain, n.Card)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ReconstructAll converts every chain in order. A malformed chain becomes an
// empty Display at its position and its error is reported through onErr, so
// one bad stack never hides the others.
func ReconstructAll(tops []*models.CardNode, onErr func(idx int, err error)) []Display {
	out := make([]Display, len(tops))
	for i, top := range tops {
		d, err := Reconstruct(top)
		if err != nil {
			if onErr != nil {
				onErr(i, err)
			}
			out[i] = Display{}
			continue
		}
		out[i] = d
	}
	return out
}
