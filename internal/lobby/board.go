package lobby

import "github.com/cory-johannsen/lobbyserver/internal/protocol"

// GameBoard is a fixed 12×9 grid of cell states plus an inverted index
// (state → set of tiles) for O(1) membership queries.
//
// Invariant: the grid and the index agree at all times; every tile is a
// member of exactly one state's set.
type GameBoard struct {
	grid    [BoardWidth][BoardHeight]protocol.CellState
	byState map[protocol.CellState]map[Tile]struct{}
	diffs   *DiffBuffer
}

// NewGameBoard creates a board with every cell in the Nothing state.
// Cell changes are appended to diffs as game-bucket messages.
//
// Precondition: diffs must be non-nil.
func NewGameBoard(diffs *DiffBuffer) *GameBoard {
	b := &GameBoard{
		byState: make(map[protocol.CellState]map[Tile]struct{}),
		diffs:   diffs,
	}
	empty := make(map[Tile]struct{}, TileCount)
	for x := 0; x < BoardWidth; x++ {
		for y := 0; y < BoardHeight; y++ {
			b.grid[x][y] = protocol.Nothing
			empty[Tile{X: x, Y: y}] = struct{}{}
		}
	}
	b.byState[protocol.Nothing] = empty
	return b
}

// SetCell moves a tile from its current state to newState, updating the
// grid and the inverted index as one atomic step, and queues a single
// cell-change diff for the game's members. Rule legality is not checked
// here; that belongs to the rule engine.
func (b *GameBoard) SetCell(tile Tile, newState protocol.CellState) {
	old := b.grid[tile.X][tile.Y]
	delete(b.byState[old], tile)
	if b.byState[newState] == nil {
		b.byState[newState] = make(map[Tile]struct{})
	}
	b.byState[newState][tile] = struct{}{}
	b.grid[tile.X][tile.Y] = newState
	b.diffs.Game(protocol.Msg(protocol.SetGameBoardCell, tile.X, tile.Y, int(newState)))
}

// State returns the current state of one cell.
func (b *GameBoard) State(tile Tile) protocol.CellState {
	return b.grid[tile.X][tile.Y]
}

// TilesIn returns how many tiles currently hold the given state.
func (b *GameBoard) TilesIn(state protocol.CellState) int {
	return len(b.byState[state])
}

// Grid returns the full board as a column-major slice of state values,
// suitable for a SetGameBoard snapshot payload.
func (b *GameBoard) Grid() [][]int {
	out := make([][]int, BoardWidth)
	for x := 0; x < BoardWidth; x++ {
		col := make([]int, BoardHeight)
		for y := 0; y < BoardHeight; y++ {
			col[y] = int(b.grid[x][y])
		}
		out[x] = col
	}
	return out
}
