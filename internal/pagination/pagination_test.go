package pagination

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Bounds(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Limit: DefaultLimit}, New(0, 0))
	assert.Equal(t, Page{Number: 3, Limit: MaxLimit}, New(3, 1000))
	assert.Equal(t, Page{Number: 2, Limit: 25}, New(2, 25))
}

func TestPage_Offset(t *testing.T) {
	assert.Equal(t, uint64(0), New(1, 10).Offset())
	assert.Equal(t, uint64(20), New(3, 10).Offset())
}

func TestPage_OffsetStaysInRange(t *testing.T) {
	for _, number := range []int{MaxNumber, MaxNumber + 1, math.MaxInt64 / 50, math.MaxInt} {
		p := New(number, 1000)
		assert.Equal(t, MaxNumber, p.Number)
		assert.LessOrEqual(t, p.Offset(), uint64(math.MaxInt32))
	}
	assert.Equal(t, uint64(0), Page{Number: -5, Limit: 10}.Offset())
}

func TestNewMeta_TotalPages(t *testing.T) {
	assert.Equal(t, 0, NewMeta(New(1, 10), 0).TotalPages)
	assert.Equal(t, 1, NewMeta(New(1, 10), 10).TotalPages)
	assert.Equal(t, 2, NewMeta(New(1, 10), 11).TotalPages)

	m := NewMeta(New(2, 5), 12)
	assert.Equal(t, Meta{Page: 2, Limit: 5, Total: 12, TotalPages: 3}, m)
}
