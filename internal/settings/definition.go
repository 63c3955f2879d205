package settings

// Character ramps ordered from darkest to brightest cell coverage.
const (
	rampCoarse = " .:#"
	rampMedium = " .-:=+#"
	rampFine   = " .-:=+*#%@"
	rampFiner  = " .,-:;=+*#%@"
	rampDense  = " .'`,-.:;=+*#%@"
	rampDenser = " .'`^\",-.:;=!+*#%@"
	rampFull   = " .'`^\",:;Il!i><~+_-?][}{1)(|/tfjrxnuvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B@$"
)

// matrixRamp is the digit/symbol half of the classic rain charset. The
// bundled monospace face has no half-width katakana, so only this half is
// used; glyph mirroring restores some of the look.
const matrixRamp = "0123456789*+:=.<>\"|¦_Z"

var definitionTable = [10]struct {
	columns int
	ramp    string
}{
	{40, rampCoarse},
	{50, rampMedium},
	{60, rampFine},
	{70, rampFiner},
	{80, rampDense},
	{100, rampDenser},
	{120, rampFull},
	{140, rampFull},
	{160, rampFull},
	{200, rampFull},
}

// DefinitionParams maps a definition level (1-10) to grid columns and the
// character ramp. The matrix theme uses its own charset at every level.
// Out-of-range levels fall back to level 5.
func DefinitionParams(level int, theme string) (columns int, charset []rune) {
	if level < 1 || level > 10 {
		level = 5
	}
	columns = definitionTable[level-1].columns
	if theme == "matrix" {
		return columns, []rune(matrixRamp)
	}
	return columns, []rune(definitionTable[level-1].ramp)
}
