package game

import "container/heap"

// maxNearestRadius bounds the spiral search in FindNearestWalkable.
const maxNearestRadius = 8

// Tile is one cell of the walkability grid.
type Tile struct {
	Col, Row int
}

// Manhattan returns the 4-way grid distance between two tiles.
func (t Tile) Manhattan(o Tile) int {
	return absInt(t.Col-o.Col) + absInt(t.Row-o.Row)
}

// NavGrid is a static walkability map with a caller-managed layer of
// temporary blocks on top (other agents' tiles during a path query).
type NavGrid struct {
	cols     int
	rows     int
	walkable []bool
	temp     map[Tile]struct{}
}

// NewNavGrid builds a grid of cols×rows tiles. walkable reports the static
// walkability of each tile; nil means every tile is walkable.
func NewNavGrid(cols, rows int, walkable func(col, row int) bool) *NavGrid {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	ng := &NavGrid{
		cols:     cols,
		rows:     rows,
		walkable: make([]bool, cols*rows),
		temp:     make(map[Tile]struct{}),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ng.walkable[r*cols+c] = walkable == nil || walkable(c, r)
		}
	}
	return ng
}

// NewNavGridFromRows builds a grid from text rows where '#' is blocked and
// every other rune is floor. Short rows are padded with blocked tiles.
func NewNavGridFromRows(rows []string) *NavGrid {
	cols := 0
	for _, r := range rows {
		if n := len(r); n > cols {
			cols = n
		}
	}
	return NewNavGrid(cols, len(rows), func(c, r int) bool {
		line := rows[r]
		if c >= len(line) {
			return false
		}
		return line[c] != '#'
	})
}

// Cols returns the grid width in tiles.
func (ng *NavGrid) Cols() int { return ng.cols }

// Rows returns the grid height in tiles.
func (ng *NavGrid) Rows() int { return ng.rows }

// InBounds reports whether (col,row) lies on the grid.
func (ng *NavGrid) InBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < ng.cols && row < ng.rows
}

// IsStaticWalkable ignores temporary blocks.
func (ng *NavGrid) IsStaticWalkable(col, row int) bool {
	if !ng.InBounds(col, row) {
		return false
	}
	return ng.walkable[row*ng.cols+col]
}

// IsWalkable checks both the static map and the temporary-block set.
func (ng *NavGrid) IsWalkable(col, row int) bool {
	if !ng.IsStaticWalkable(col, row) {
		return false
	}
	_, blocked := ng.temp[Tile{col, row}]
	return !blocked
}

// SetTemporaryBlock marks t as blocked until the next ClearTemporaryBlocks.
func (ng *NavGrid) SetTemporaryBlock(t Tile) {
	ng.temp[t] = struct{}{}
}

// ClearTemporaryBlocks removes every temporary block.
func (ng *NavGrid) ClearTemporaryBlocks() {
	clear(ng.temp)
}

// TemporaryBlockCount returns how many tiles are temporarily blocked.
func (ng *NavGrid) TemporaryBlockCount() int {
	return len(ng.temp)
}

// FindNearestWalkable returns t itself when walkable, otherwise the first
// walkable tile found on the perimeter of squares of radius 1..8 around it.
func (ng *NavGrid) FindNearestWalkable(t Tile) (Tile, bool) {
	if ng.IsWalkable(t.Col, t.Row) {
		return t, true
	}
	for r := 1; r <= maxNearestRadius; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				// Perimeter only.
				if absInt(dx) != r && absInt(dy) != r {
					continue
				}
				c, rw := t.Col+dx, t.Row+dy
				if ng.IsWalkable(c, rw) {
					return Tile{c, rw}, true
				}
			}
		}
	}
	return Tile{}, false
}

// --- A* pathfinding ---

type pathNode struct {
	tile   Tile
	g, h   int
	seq    int // insertion order, breaks f-score ties
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

var dirs = [4][2]int{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
}

// FindPath returns the tiles from start to goal, excluding start. The result
// is empty when the goal is unwalkable, unreachable, or equal to start. The
// start tile itself is never checked, so an agent standing on its own
// temporary block can still leave.
func (ng *NavGrid) FindPath(start, goal Tile) []Tile {
	if start == goal || !ng.IsWalkable(goal.Col, goal.Row) {
		return nil
	}
	if !ng.InBounds(start.Col, start.Row) {
		return nil
	}

	key := func(t Tile) int { return t.Row*ng.cols + t.Col }
	seq := 0

	first := &pathNode{tile: start, h: start.Manhattan(goal)}
	ol := &openList{first}
	heap.Init(ol)

	closed := make(map[int]bool)
	best := map[int]int{key(start): 0}

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		if cur.tile == goal {
			return buildPath(cur)
		}
		k := key(cur.tile)
		if closed[k] {
			continue
		}
		closed[k] = true

		for _, d := range dirs {
			next := Tile{cur.tile.Col + d[0], cur.tile.Row + d[1]}
			if !ng.IsWalkable(next.Col, next.Row) {
				continue
			}
			nk := key(next)
			if closed[nk] {
				continue
			}
			g := cur.g + 1
			if prev, ok := best[nk]; ok && g >= prev {
				continue
			}
			best[nk] = g
			seq++
			heap.Push(ol, &pathNode{tile: next, g: g, h: next.Manhattan(goal), seq: seq, parent: cur})
		}
	}
	return nil
}

func buildPath(end *pathNode) []Tile {
	var tiles []Tile
	for n := end; n.parent != nil; n = n.parent {
		tiles = append(tiles, n.tile)
	}
	// Reverse
	for i, j := 0, len(tiles)-1; i < j; i, j = i+1, j-1 {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
	return tiles
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
