package lobby

import "math/rand"

// Board dimensions. The tile pool is every coordinate on the board.
const (
	BoardWidth  = 12
	BoardHeight = 9
	TileCount   = BoardWidth * BoardHeight
)

// Tile is one board coordinate.
type Tile struct {
	X int
	Y int
}

// Less orders tiles lexicographically by X then Y. Seat indices are
// assigned in this order.
func (t Tile) Less(other Tile) bool {
	if t.X != other.X {
		return t.X < other.X
	}
	return t.Y < other.Y
}

// TileBag is a shuffled, finite pool of unique board coordinates, drawn
// without replacement.
type TileBag struct {
	tiles []Tile
}

// NewTileBag creates a bag holding every board coordinate once, shuffled
// with the given source.
//
// Precondition: src must be non-nil.
func NewTileBag(src rand.Source) *TileBag {
	tiles := make([]Tile, 0, TileCount)
	for x := 0; x < BoardWidth; x++ {
		for y := 0; y < BoardHeight; y++ {
			tiles = append(tiles, Tile{X: x, Y: y})
		}
	}
	rng := rand.New(src)
	rng.Shuffle(len(tiles), func(i, j int) {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	})
	return &TileBag{tiles: tiles}
}

// Draw removes and returns one tile. An exhausted bag reports ok=false,
// never an error.
func (b *TileBag) Draw() (Tile, bool) {
	if len(b.tiles) == 0 {
		return Tile{}, false
	}
	t := b.tiles[len(b.tiles)-1]
	b.tiles = b.tiles[:len(b.tiles)-1]
	return t, true
}

// Len returns the number of tiles remaining.
func (b *TileBag) Len() int {
	return len(b.tiles)
}
