package game

import "math"

// Vec2 is a pixel-space position or velocity.
type Vec2 struct {
	X, Y float64
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Len returns the vector length.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the distance between v and o.
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// PixelToTile converts a pixel position to the tile containing it.
func PixelToTile(p Vec2, tileSize int) Tile {
	ts := float64(tileSize)
	return Tile{int(math.Floor(p.X / ts)), int(math.Floor(p.Y / ts))}
}

// TileToPixel returns the pixel centre of a tile.
func TileToPixel(t Tile, tileSize int) Vec2 {
	half := float64(tileSize) / 2
	return Vec2{float64(t.Col*tileSize) + half, float64(t.Row*tileSize) + half}
}

// ComputePath runs the pathfinder between two pixel positions and returns
// the waypoints as tile-centre pixels, excluding the start tile.
func ComputePath(ng *NavGrid, tileSize int, from, to Vec2) []Vec2 {
	tiles := ng.FindPath(PixelToTile(from, tileSize), PixelToTile(to, tileSize))
	if len(tiles) == 0 {
		return nil
	}
	path := make([]Vec2, len(tiles))
	for i, t := range tiles {
		path[i] = TileToPixel(t, tileSize)
	}
	return path
}

// RefreshDynamicBlocks clears the temporary blocks and re-applies one per
// agent's current tile. Called once per frame before any path query.
func RefreshDynamicBlocks(ng *NavGrid, tileSize int, agents []*Agent) {
	ng.ClearTemporaryBlocks()
	for _, a := range agents {
		ng.SetTemporaryBlock(PixelToTile(a.pos, tileSize))
	}
}
