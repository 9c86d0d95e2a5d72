package screening

import "gonum.org/v1/gonum/spatial/r3"

// cellKey addresses one cubic cell of the spatial hash.
type cellKey struct {
	x, y, z int32
}

// grid buckets track indices into cubic cells. The cell side is the
// screening threshold padded by the distance a pair can close between two
// coarse samples, so any pair able to come within threshold of each other
// before the next sample shares a cell or sits in adjacent cells.
type grid struct {
	side  float64
	cells map[cellKey][]int
}

func newGrid(side float64) *grid {
	return &grid{side: side, cells: make(map[cellKey][]int)}
}

func (g *grid) insert(idx int, p r3.Vec) {
	k := cellKey{
		x: int32(fastFloorDiv(p.X, g.side)),
		y: int32(fastFloorDiv(p.Y, g.side)),
		z: int32(fastFloorDiv(p.Z, g.side)),
	}
	g.cells[k] = append(g.cells[k], idx)
}

func fastFloorDiv(v, side float64) int64 {
	q := v / side
	i := int64(q)
	if q < 0 && float64(i) != q {
		i--
	}
	return i
}

// halfNeighborhood is the 13 lexicographically-positive offsets of the 26
// neighbors, so each unordered cell pair is visited exactly once.
var halfNeighborhood = [13]cellKey{
	{1, -1, -1}, {1, -1, 0}, {1, -1, 1},
	{1, 0, -1}, {1, 0, 0}, {1, 0, 1},
	{1, 1, -1}, {1, 1, 0}, {1, 1, 1},
	{0, 1, -1}, {0, 1, 0}, {0, 1, 1},
	{0, 0, 1},
}

// visitPairs calls fn once for every index pair sharing a cell or sitting in
// adjacent cells, with i < j.
func (g *grid) visitPairs(fn func(i, j int)) {
	for key, members := range g.cells {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if j < i {
					i, j = j, i
				}
				fn(i, j)
			}
		}
		for _, off := range halfNeighborhood {
			neighbor := cellKey{key.x + off.x, key.y + off.y, key.z + off.z}
			others, ok := g.cells[neighbor]
			if !ok {
				continue
			}
			for _, m := range members {
				for _, o := range others {
					i, j := m, o
					if j < i {
						i, j = j, i
					}
					fn(i, j)
				}
			}
		}
	}
}
