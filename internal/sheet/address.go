// File: internal/sheet/address.go
// Description: Pure spreadsheet address arithmetic - column letter/number
// conversion and "B5"-style cell address parsing. No state, no I/O.

package sheet

import "strings"

// maxColumn is the highest column the two-letter scheme covers ("ZZ").
const maxColumn = 702

// ColumnNameFromNumber converts a 1-based column number to its letter form
// (1 -> "A", 27 -> "AA", 702 -> "ZZ"). Out-of-range input yields "".
func ColumnNameFromNumber(n int) string {
	if n < 1 || n > maxColumn {
		return ""
	}
	if n <= 26 {
		return string(rune('A' + n - 1))
	}
	first := (n - 27) / 26
	second := (n - 27) % 26
	return string([]rune{'A' + rune(first), 'A' + rune(second)})
}

// ColumnNumberFromName converts a column letter form back to its 1-based
// number. Unrecognized input yields 0.
func ColumnNumberFromName(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || len(name) > 2 {
		return 0
	}
	n := 0
	for _, r := range name {
		if r < 'A' || r > 'Z' {
			return 0
		}
		n = n*26 + int(r-'A') + 1
	}
	if n > maxColumn {
		return 0
	}
	return n
}

// ParseCellAddress parses an "A1"-style address into a 1-based (row, col)
// pair. The column part is one or two letters; the row part is all digits.
func ParseCellAddress(addr string) (row, col int, ok bool) {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	i := 0
	for i < len(addr) && addr[i] >= 'A' && addr[i] <= 'Z' {
		i++
	}
	if i == 0 || i > 2 || i == len(addr) {
		return 0, 0, false
	}
	col = ColumnNumberFromName(addr[:i])
	if col == 0 {
		return 0, 0, false
	}
	for _, r := range addr[i:] {
		if r < '0' || r > '9' {
			return 0, 0, false
		}
		row = row*10 + int(r-'0')
	}
	if row == 0 {
		return 0, 0, false
	}
	return row, col, true
}
