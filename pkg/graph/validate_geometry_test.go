package graph

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placed(v *View, x, y, w, h int) *Node {
	n := NewNode("box")
	v.Add(n)
	n.SetRect(Rect{X: x, Y: y, Width: w, Height: h})
	return n
}

func TestValidateLayoutClean(t *testing.T) {
	v := NewView()
	placed(v, 0, 0, 100, 100)
	placed(v, 100, 0, 100, 100) // touching, not overlapping
	placed(v, 0, 100, 100, 100)
	assert.Empty(t, ValidateLayout(v))
}

func TestValidateLayoutEmptyRect(t *testing.T) {
	v := NewView()
	n := placed(v, 0, 0, 0, -5)

	errs := ValidateLayout(v)
	require.Len(t, errs, 2)
	assert.True(t, hasError(errs, "width is 0"))
	assert.True(t, hasError(errs, "height is -5"))
	assert.Equal(t, n.ID(), errs[0].NodeID)
}

func TestValidateLayoutOverlapIsWarning(t *testing.T) {
	v := NewView()
	a := placed(v, 0, 0, 100, 100)
	b := placed(v, 50, 50, 100, 100)
	placed(v, 500, 500, 10, 10)

	errs := ValidateLayout(v)
	require.Len(t, errs, 1)
	assert.Equal(t, SeverityWarning, errs[0].Severity)
	assert.Equal(t, b.ID(), errs[0].NodeID)
	assert.Contains(t, errs[0].Message, "overlaps node")
	assert.Contains(t, errs[0].Message, strconv.Itoa(a.ID()))
}

func TestValidateLayoutDefaultPlacementStacks(t *testing.T) {
	v := NewView()
	v.Add(NewNode("x"))
	v.Add(NewNode("y"))
	v.Add(NewNode("z"))
	assert.Len(t, ValidateLayout(v), 3, "every pair of stacked nodes is reported")
}

func TestRectOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want bool
	}{
		{"same", Rect{0, 0, 10, 10}, Rect{0, 0, 10, 10}, true},
		{"inside", Rect{0, 0, 10, 10}, Rect{2, 2, 2, 2}, true},
		{"corner", Rect{0, 0, 10, 10}, Rect{9, 9, 10, 10}, true},
		{"touching", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, false},
		{"apart", Rect{0, 0, 10, 10}, Rect{30, 30, 1, 1}, false},
		{"empty", Rect{0, 0, 0, 10}, Rect{0, 0, 10, 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}
