// Package keycode maps raw virtual keycodes to typed characters.
//
// The table follows the HIToolbox virtual keycode layout for a US keyboard.
// Classification is a total function: every keycode either resolves to a
// printable rune (possibly shifted) or to no character at all. Control keys
// (arrows, escape, function keys) and unknown codes never produce a rune.
package keycode

// Well-known keycodes referenced throughout the daemon.
const (
	// Backspace is the delete/backspace key. It is handled as a buffer
	// edit during lock, never as a printable character.
	Backspace int64 = 51

	// Space is the spacebar, the designated talk-passthrough key.
	Space int64 = 49

	// DefaultLockKey is the 'L' key, default trigger for the lock hotkey.
	DefaultLockKey int64 = 37

	// DefaultTalkKey is the 'T' key, default trigger for the talk hotkey.
	DefaultTalkKey int64 = 17
)

// printable maps a keycode to its unshifted and shifted runes.
type printable struct {
	base    rune
	shifted rune
}

var table = map[int64]printable{
	// Letters
	0:  {'a', 'A'},
	1:  {'s', 'S'},
	2:  {'d', 'D'},
	3:  {'f', 'F'},
	4:  {'h', 'H'},
	5:  {'g', 'G'},
	6:  {'z', 'Z'},
	7:  {'x', 'X'},
	8:  {'c', 'C'},
	9:  {'v', 'V'},
	11: {'b', 'B'},
	12: {'q', 'Q'},
	13: {'w', 'W'},
	14: {'e', 'E'},
	15: {'r', 'R'},
	16: {'y', 'Y'},
	17: {'t', 'T'},
	31: {'o', 'O'},
	32: {'u', 'U'},
	34: {'i', 'I'},
	35: {'p', 'P'},
	37: {'l', 'L'},
	38: {'j', 'J'},
	40: {'k', 'K'},
	45: {'n', 'N'},
	46: {'m', 'M'},

	// Digit row
	18: {'1', '!'},
	19: {'2', '@'},
	20: {'3', '#'},
	21: {'4', '$'},
	23: {'5', '%'},
	22: {'6', '^'},
	26: {'7', '&'},
	28: {'8', '*'},
	25: {'9', '('},
	29: {'0', ')'},

	// Punctuation
	27: {'-', '_'},
	24: {'=', '+'},
	33: {'[', '{'},
	30: {']', '}'},
	41: {';', ':'},
	39: {'\'', '"'},
	42: {'\\', '|'},
	43: {',', '<'},
	47: {'.', '>'},
	44: {'/', '?'},
	50: {'`', '~'},

	// Whitespace
	49: {' ', ' '},
	48: {'\t', '\t'},
	36: {'\n', '\n'},
	76: {'\n', '\n'}, // keypad enter
}

// ToChar converts a keycode plus shift state to a printable rune.
// The second return is false for control keys and unrecognized codes.
func ToChar(code int64, shift bool) (rune, bool) {
	p, ok := table[code]
	if !ok {
		return 0, false
	}
	if shift {
		return p.shifted, true
	}
	return p.base, true
}

// letterCodes maps single-letter identifiers (as used in configuration) to
// their virtual keycodes.
var letterCodes = map[rune]int64{
	'a': 0, 'b': 11, 'c': 8, 'd': 2, 'e': 14, 'f': 3, 'g': 5, 'h': 4,
	'i': 34, 'j': 38, 'k': 40, 'l': 37, 'm': 46, 'n': 45, 'o': 31, 'p': 35,
	'q': 12, 'r': 15, 's': 1, 't': 17, 'u': 32, 'v': 9, 'w': 13, 'x': 7,
	'y': 16, 'z': 6,
}

// LetterCode returns the keycode for a single ASCII letter identifier.
// Case is ignored. The second return is false for anything that is not
// a letter a-z.
func LetterCode(letter rune) (int64, bool) {
	if letter >= 'A' && letter <= 'Z' {
		letter += 'a' - 'A'
	}
	code, ok := letterCodes[letter]
	return code, ok
}
