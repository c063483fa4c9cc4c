// File: internal/sheet/address_test.go
package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnNameFromNumber(t *testing.T) {
	cases := map[int]string{
		1:   "A",
		2:   "B",
		26:  "Z",
		27:  "AA",
		28:  "AB",
		52:  "AZ",
		53:  "BA",
		702: "ZZ",
	}
	for n, want := range cases {
		assert.Equal(t, want, ColumnNameFromNumber(n), "column %d", n)
	}

	assert.Empty(t, ColumnNameFromNumber(0))
	assert.Empty(t, ColumnNameFromNumber(-3))
	assert.Empty(t, ColumnNameFromNumber(703))
}

func TestColumnRoundTrip(t *testing.T) {
	for n := 1; n <= 702; n++ {
		name := ColumnNameFromNumber(n)
		require.NotEmpty(t, name)
		require.Equal(t, n, ColumnNumberFromName(name), "column %d", n)
	}
}

func TestColumnNumberFromName(t *testing.T) {
	assert.Equal(t, 1, ColumnNumberFromName("a"))
	assert.Equal(t, 27, ColumnNumberFromName(" aa "))
	assert.Zero(t, ColumnNumberFromName(""))
	assert.Zero(t, ColumnNumberFromName("AAA"))
	assert.Zero(t, ColumnNumberFromName("A1"))
}

func TestParseCellAddress(t *testing.T) {
	row, col, ok := ParseCellAddress("B5")
	require.True(t, ok)
	assert.Equal(t, 5, row)
	assert.Equal(t, 2, col)

	row, col, ok = ParseCellAddress("aa10")
	require.True(t, ok)
	assert.Equal(t, 10, row)
	assert.Equal(t, 27, col)

	for _, bad := range []string{"", "B", "5", "B0", "ABC5", "B5X", "Sheet1"} {
		_, _, ok := ParseCellAddress(bad)
		assert.False(t, ok, "address %q", bad)
	}
}
