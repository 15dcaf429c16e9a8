package game

import "math"

// CrashMultiplier maps u to a crash point:
//
//	max(1.00, floor(100*edge / (1-u)) / 100), capped at ceiling.
//
// The result is non-decreasing in u, never below 1.00 and never above ceiling.
func CrashMultiplier(u, edge, ceiling float64) float64 {
	if u >= 1 {
		return ceiling
	}

	m := math.Floor((100*edge)/(1-u)) / 100
	if m < MinMultiplier {
		m = MinMultiplier
	}
	if m > ceiling {
		m = ceiling
	}
	return m
}

func (e *Engine) crash(u float64) Result {
	return Result{
		Game:       GameCrash,
		Multiplier: CrashMultiplier(u, e.cfg.Crash.HouseEdgeFactor, e.cfg.Crash.MaxMultiplier),
	}
}
