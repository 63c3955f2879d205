package render

import (
	"time"

	"github.com/smazurov/asciinode/internal/settings"
)

// headColor is the bright white-green of a stream head, distinct from the
// trail foreground.
var headColor = settings.RGB{R: 220, G: 255, B: 220}

// cellRender is one grid cell's draw instruction.
type cellRender struct {
	ch        rune
	color     settings.RGB
	intensity float32
}

// rainStream is a single falling stream within a column.
type rainStream struct {
	position    float32 // fractional row of the head
	speed       float32 // rows per second
	trailLength uint32  // bright rows behind the head
	ghostLength uint32  // dim remnant rows after the trail (movie mode)
}

type rainColumn struct {
	streams       []rainStream
	charIndices   []uint16 // random charset index per row, shared by streams
	charTimers    []uint8  // frames until mutation per row (movie mode)
	spawnCooldown uint16
}

// rainState simulates falling character streams. Movie mode runs up to
// three streams per column with ghost trails and per-row character
// mutation; classic mode keeps one stream and a sparse background.
type rainState struct {
	columns    []rainColumn
	rows       int
	cols       int
	charsetLen int
	rng        uint64
	movieMode  bool
}

func xorshift64(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}

func newRainState(cols, rows, charsetLen int, movieMode bool) *rainState {
	rng := uint64(time.Now().UnixNano()) | 1

	s := &rainState{
		rows:       rows,
		cols:       cols,
		charsetLen: charsetLen,
		movieMode:  movieMode,
	}
	s.columns = make([]rainColumn, cols)
	for i := range s.columns {
		s.columns[i] = newColumn(&rng, rows, charsetLen, movieMode)
	}

	// Stagger startup so the columns don't march in lockstep.
	for i := range s.columns {
		s.columns[i].spawnCooldown = uint16(xorshift64(&rng) % 60)
		if i%3 == 0 && len(s.columns[i].streams) > 0 {
			s.columns[i].streams[0].position = -float32(xorshift64(&rng) % uint64(rows))
		}
	}

	s.rng = rng
	return s
}

func newColumn(rng *uint64, rows, charsetLen int, movieMode bool) rainColumn {
	col := rainColumn{
		streams:     []rainStream{newStream(rng, rows, movieMode)},
		charIndices: make([]uint16, rows),
	}
	for i := range col.charIndices {
		if charsetLen > 0 {
			col.charIndices[i] = uint16(xorshift64(rng) % uint64(charsetLen))
		}
	}
	if movieMode {
		col.charTimers = make([]uint8, rows)
		for i := range col.charTimers {
			col.charTimers[i] = uint8(xorshift64(rng)%4 + 2)
		}
	}
	return col
}

func newStream(rng *uint64, rows int, movieMode bool) rainStream {
	speed := 10.0 + float32(xorshift64(rng)%3500)/100 // 10..45 rows/s

	minTrail := uint32(rows / 6)
	if minTrail < 3 {
		minTrail = 3
	}
	maxTrail := uint32(rows / 3)
	if maxTrail < minTrail+1 {
		maxTrail = minTrail + 1
	}
	trailRange := maxTrail - minTrail
	if trailRange < 1 {
		trailRange = 1
	}
	trailLength := minTrail + uint32(xorshift64(rng))%trailRange

	var ghostLength uint32
	if movieMode {
		minGhost := trailLength / 2
		ghostRange := trailLength - minGhost
		if ghostRange < 1 {
			ghostRange = 1
		}
		ghostLength = minGhost + uint32(xorshift64(rng))%ghostRange
		if ghostLength < 1 {
			ghostLength = 1
		}
	}

	return rainStream{
		speed:       speed,
		trailLength: trailLength,
		ghostLength: ghostLength,
	}
}

// advance moves all streams by dt seconds, mutates characters, retires
// streams that fell off the grid and spawns replacements.
func (s *rainState) advance(dt float32) {
	maxStreams := 1
	if s.movieMode {
		maxStreams = 3
	}

	for c := range s.columns {
		col := &s.columns[c]

		for i := range col.streams {
			col.streams[i].position += col.streams[i].speed * dt
		}

		if s.movieMode {
			for row := 0; row < s.rows && row < len(col.charTimers); row++ {
				if col.charTimers[row] > 0 {
					col.charTimers[row]--
					continue
				}
				if s.charsetLen > 0 {
					col.charIndices[row] = uint16(xorshift64(&s.rng) % uint64(s.charsetLen))
				}
				// Cells inside an active trail mutate faster than the
				// ambient background.
				inActive := false
				for _, stream := range col.streams {
					dist := int(stream.position) - row
					if dist >= 0 && uint32(dist) < stream.trailLength {
						inActive = true
						break
					}
				}
				if inActive {
					col.charTimers[row] = uint8(xorshift64(&s.rng)%3 + 2)
				} else {
					col.charTimers[row] = uint8(xorshift64(&s.rng)%5 + 4)
				}
			}
		} else if len(col.streams) > 0 {
			// Classic mode only churns the rows near the head.
			head := int(col.streams[0].position)
			for offset := 0; offset < 3; offset++ {
				r := head - offset
				if r >= 0 && r < s.rows && s.charsetLen > 0 {
					col.charIndices[r] = uint16(xorshift64(&s.rng) % uint64(s.charsetLen))
				}
			}
		}

		// Retire streams whose ghost trail fully exited the bottom.
		kept := col.streams[:0]
		for _, stream := range col.streams {
			trailEnd := int(stream.position) - int(stream.trailLength) - int(stream.ghostLength)
			if trailEnd <= s.rows {
				kept = append(kept, stream)
			}
		}
		col.streams = kept

		switch {
		case len(col.streams) == 0:
			col.streams = append(col.streams, newStream(&s.rng, s.rows, s.movieMode))
			col.spawnCooldown = uint16(xorshift64(&s.rng)%40 + 20)
		case col.spawnCooldown > 0:
			col.spawnCooldown--
		case len(col.streams) < maxStreams:
			col.streams = append(col.streams, newStream(&s.rng, s.rows, s.movieMode))
			col.spawnCooldown = uint16(xorshift64(&s.rng)%40 + 20)
		}
	}
}

// computeCells merges the rain state with the webcam brightness grid into
// per-cell draw instructions.
func (s *rainState) computeCells(grid []float32, charset []rune, curve settings.Curve, invert bool, fg settings.RGB) []cellRender {
	n := len(charset)
	const bgFactor = 0.55 // classic mode background dimming
	cells := make([]cellRender, 0, s.cols*s.rows)

	for row := 0; row < s.rows; row++ {
		for col := 0; col < s.cols; col++ {
			rainCol := &s.columns[col]

			wb := curve.Apply(grid[row*s.cols+col])
			if invert {
				wb = 1 - wb
			}

			var bestIntensity float32
			bestColor := fg
			isRain := false

			for _, stream := range rainCol.streams {
				if stream.trailLength == 0 {
					continue
				}
				distance := int(stream.position) - row
				if distance < 0 {
					continue
				}

				dist := uint32(distance)
				var intensity float32
				switch {
				case dist < stream.trailLength:
					// Active trail: quadratic decay from the head.
					t := float32(distance) / float32(stream.trailLength)
					intensity = (1 - t) * (1 - t)
				case stream.ghostLength > 0 && dist < stream.trailLength+stream.ghostLength:
					// Ghost trail: faint remnant decaying to zero.
					ghostT := float32(dist-stream.trailLength) / float32(stream.ghostLength)
					intensity = 0.18 * (1 - ghostT) * (1 - ghostT)
				default:
					continue
				}

				if intensity > bestIntensity {
					bestIntensity = intensity
					isRain = true
					switch {
					case distance <= 0:
						bestColor = headColor
					case distance <= 3:
						blend := float32(distance) / 3
						bestColor = settings.RGB{
							R: uint8(float32(headColor.R)*(1-blend) + float32(fg.R)*blend),
							G: uint8(float32(headColor.G)*(1-blend) + float32(fg.G)*blend),
							B: uint8(float32(headColor.B)*(1-blend) + float32(fg.B)*blend),
						}
					default:
						bestColor = fg
					}
				}
			}

			switch {
			case isRain:
				ch := '#'
				if n > 0 {
					ch = charset[int(rainCol.charIndices[row])%n]
				}
				cells = append(cells, cellRender{
					ch:        ch,
					color:     bestColor,
					intensity: bestIntensity * (0.35 + 0.65*wb),
				})
			case s.movieMode:
				// Dense ambient background modulated by the webcam.
				ch := '#'
				if n > 0 {
					ch = charset[int(rainCol.charIndices[row])%n]
				}
				cells = append(cells, cellRender{
					ch:        ch,
					color:     fg,
					intensity: 0.06 + wb*0.55,
				})
			default:
				ch := ' '
				if n > 0 {
					idx := int(wb*float32(n-1) + 0.5)
					if idx > n-1 {
						idx = n - 1
					}
					ch = charset[idx]
				}
				cells = append(cells, cellRender{
					ch:        ch,
					color:     fg,
					intensity: wb * bgFactor,
				})
			}
		}
	}

	return cells
}
