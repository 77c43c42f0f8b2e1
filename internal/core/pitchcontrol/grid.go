package pitchcontrol

import "fmt"

// Field is the size of the playing surface in the positions' length unit.
type Field struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
}

// DefaultField is a 106x68 m pitch.
var DefaultField = Field{Length: 106, Width: 68}

// Grid holds the cell centre coordinates along the long (X) and short (Y)
// axis, both centred on the origin.
type Grid struct {
	X []float64
	Y []float64
}

// NewGrid splits the field into nx cells along its length; the number of
// cells along the width keeps the field's aspect ratio (truncated).
func NewGrid(f Field, nx int) (Grid, error) {
	if !(f.Length > 0) || !(f.Width > 0) {
		return Grid{}, fmt.Errorf("%w: field dimensions must be positive, got %vx%v", ErrInvalidGrid, f.Length, f.Width)
	}
	if nx < 1 {
		return Grid{}, fmt.Errorf("%w: need at least one cell along x, got %d", ErrInvalidGrid, nx)
	}
	ny := int(float64(nx) * f.Width / f.Length)
	if ny < 1 {
		return Grid{}, fmt.Errorf("%w: %d cells along x leave no cell along y", ErrInvalidGrid, nx)
	}
	return Grid{
		X: linspace(-f.Length/2, f.Length/2, nx),
		Y: linspace(-f.Width/2, f.Width/2, ny),
	}, nil
}

func (g Grid) Cells() int { return len(g.X) * len(g.Y) }

// linspace returns n evenly spaced samples over [start, stop].
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
