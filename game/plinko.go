package game

import "strings"

// PlinkoPath drops a ball through rows pins, one slice per row: u < 0.5 steps
// left, otherwise right. It returns the path ("L"/"R" per row) and the number
// of right steps, which is the bucket index counted from the left edge.
func PlinkoPath(digest []byte, rows int) (string, int) {
	var b strings.Builder
	b.Grow(rows)

	rights := 0
	for _, u := range Slices(digest, rows) {
		if u < 0.5 {
			b.WriteByte('L')
		} else {
			b.WriteByte('R')
			rights++
		}
	}
	return b.String(), rights
}

func (e *Engine) plinko(digest []byte, p Params) Result {
	path, rights := PlinkoPath(digest, p.Rows)
	payouts := e.cfg.Plinko[p.Risk][p.Rows]

	return Result{
		Game:       GamePlinko,
		Multiplier: payouts[rights],
		Plinko: &PlinkoResult{
			Rows:         p.Rows,
			Risk:         p.Risk,
			Path:         path,
			Displacement: rights - (p.Rows - rights),
			Bucket:       rights,
		},
	}
}
