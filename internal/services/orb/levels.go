package orb

import "OrbLab/internal/domain/models"

// ComputeLevels derives the fixed exit levels of a new position from the
// signal price and the day's opening range.
func ComputeLevels(p models.Params, entry, orRange float64, dir models.Direction) models.Levels {
	s := dir.Sign()
	stop := entry - s*orRange*p.InitialStopMultiplier
	return models.Levels{
		InitialStop:      stop,
		CurrentStop:      stop,
		BreakevenTrigger: entry + s*orRange*p.BreakevenMultiplier,
		Target1:          entry + s*orRange*p.Target1Multiplier,
		Target2:          entry + s*orRange*p.Target2Multiplier,
		Target3:          entry + s*orRange*p.Target3Multiplier,
		TrailingDistance: orRange * p.TrailingStopMultiplier,
	}
}
