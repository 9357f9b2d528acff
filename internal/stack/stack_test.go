package stack

import (
	"errors"
	"testing"

	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id int64, typ string, under *models.CardNode) *models.CardNode {
	return &models.CardNode{
		Card:  models.Card{TableCardID: models.FlexInt(id), Type: typ},
		Under: under,
	}
}

func types(d Display) []string {
	out := make([]string, len(d))
	for i, c := range d {
		out[i] = c.Type
	}
	return out
}

func TestReconstructSingleCard(t *testing.T) {
	a := node(1, "Tempura", nil)

	d, err := Reconstruct(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tempura"}, types(d))
}

func TestReconstructOrdersBottomToTop(t *testing.T) {
	// A sits on B which sits on C; C is the physical bottom.
	c := node(3, "C", nil)
	b := node(2, "B", c)
	a := node(1, "A", b)

	d, err := Reconstruct(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, types(d))

	bottom, ok := d.Bottom()
	require.True(t, ok)
	assert.Equal(t, "C", bottom.Type)
	top, ok := d.Top()
	require.True(t, ok)
	assert.Equal(t, "A", top.Type)
}

func TestReconstructIsNonDestructive(t *testing.T) {
	c := node(3, "C", nil)
	b := node(2, "B", c)
	a := node(1, "A", b)

	first, err := Reconstruct(a)
	require.NoError(t, err)
	second, err := Reconstruct(a)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Same(t, b, a.Under)
	assert.Same(t, c, b.Under)
	assert.Nil(t, c.Under)
}

func TestReconstructLongChainKeepsLength(t *testing.T) {
	var top *models.CardNode
	for i := int64(1); i <= 50; i++ {
		top = node(i, "Nigiri", top)
	}

	d, err := Reconstruct(top)
	require.NoError(t, err)
	require.Len(t, d, 50)
	for i, c := range d {
		assert.Equal(t, int64(i+1), c.TableCardID.Int64())
	}
}

func TestReconstructDetectsPointerCycle(t *testing.T) {
	a := node(1, "A", nil)
	b := node(2, "B", a)
	a.Under = b

	d, err := Reconstruct(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedChain))
	assert.Nil(t, d)
}

func TestReconstructDetectsRepeatedCardID(t *testing.T) {
	// Decoded JSON can't alias pointers, but it can repeat a card.
	a := node(7, "Wasabi", node(8, "Nigiri", node(7, "Wasabi", nil)))

	_, err := Reconstruct(a)
	assert.ErrorIs(t, err, ErrMalformedChain)
}

func TestReconstructComparesIDsWithinOneField(t *testing.T) {
	bottom := &models.CardNode{Card: models.Card{SessionCardID: 5, Type: "Nigiri"}}
	top := &models.CardNode{Card: models.Card{TableCardID: 5, Type: "Wasabi"}, Under: bottom}

	d, err := Reconstruct(top)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nigiri", "Wasabi"}, types(d))
}

func TestReconstructIgnoresMissingIDs(t *testing.T) {
	a := &models.CardNode{Card: models.Card{Type: "Wasabi"}, Under: &models.CardNode{Card: models.Card{Type: "Nigiri"}}}

	d, err := Reconstruct(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nigiri", "Wasabi"}, types(d))
}

func TestReconstructNil(t *testing.T) {
	d, err := Reconstruct(nil)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestReconstructAllIsolatesMalformedStacks(t *testing.T) {
	good := node(1, "Wasabi", node(2, "Nigiri", nil))
	bad := node(3, "A", nil)
	bad.Under = bad

	var failed []int
	out := ReconstructAll([]*models.CardNode{good, bad}, func(idx int, err error) {
		assert.ErrorIs(t, err, ErrMalformedChain)
		failed = append(failed, idx)
	})

	require.Len(t, out, 2)
	assert.Equal(t, []string{"Nigiri", "Wasabi"}, types(out[0]))
	assert.NotNil(t, out[1])
	assert.Empty(t, out[1])
	assert.Equal(t, []int{1}, failed)
}
