// internal/dtmf/dtmf.go
package dtmf

import "fmt"

// Symbol is a keypad symbol: '0'-'9', 'A'-'D', '*' or '#'.
type Symbol byte

// None is the canonical "no detection" result. The synthesizer also reads it
// as "key released" (tone off).
const None Symbol = 0

// NoTone marks an axis with no detected frequency.
const NoTone = 0.0

// Low group (row) frequencies in Hz, ascending.
var Low = [4]float64{697, 770, 852, 941}

// High group (column) frequencies in Hz, ascending.
var High = [4]float64{1209, 1336, 1477, 1633}

var keypad = [4][4]Symbol{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// Symbols lists all sixteen keypad symbols in row-major keypad order.
func Symbols() []Symbol {
	out := make([]Symbol, 0, 16)
	for _, row := range keypad {
		out = append(out, row[:]...)
	}
	return out
}

// Decode maps a (low, high) frequency pair to its keypad symbol. Any pair
// outside the table, including NoTone on either axis, decodes to None.
func Decode(low, high float64) Symbol {
	r := indexOf(Low[:], low)
	c := indexOf(High[:], high)
	if r < 0 || c < 0 {
		return None
	}
	return keypad[r][c]
}

// Frequencies returns the row and column frequencies of s.
func Frequencies(s Symbol) (low, high float64, ok bool) {
	for r, row := range keypad {
		for c, k := range row {
			if k == s {
				return Low[r], High[c], true
			}
		}
	}
	return NoTone, NoTone, false
}

// Valid reports whether s is one of the sixteen keypad symbols.
func (s Symbol) Valid() bool {
	_, _, ok := Frequencies(s)
	return ok
}

func (s Symbol) String() string {
	if s == None {
		return "none"
	}
	if !s.Valid() {
		return fmt.Sprintf("Symbol(%#02x)", byte(s))
	}
	return string(rune(s))
}

func indexOf(freqs []float64, f float64) int {
	for i, v := range freqs {
		if v == f {
			return i
		}
	}
	return -1
}
