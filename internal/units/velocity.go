package units

import "math"

// SpeedOfLight is the speed of light in vacuum in m/s.
const SpeedOfLight = 299792458.0

// DopplerFactor returns the relativistic wavelength factor sqrt((1-v/c)/(1+v/c))
// for a velocity in m/s. Positive velocities shorten wavelengths; every
// shift in the engine goes through this one convention.
func DopplerFactor(velocity float64) float64 {
	beta := velocity / SpeedOfLight
	return math.Sqrt((1 - beta) / (1 + beta))
}

// DopplerShift returns a new wavelength grid shifted by velocity (m/s).
func DopplerShift(wave []float64, velocity float64) []float64 {
	factor := DopplerFactor(velocity)
	out := make([]float64, len(wave))
	for i, w := range wave {
		out[i] = w * factor
	}
	return out
}

// DopplerShiftValue shifts a single wavelength by velocity (m/s).
func DopplerShiftValue(wave, velocity float64) float64 {
	return wave * DopplerFactor(velocity)
}
