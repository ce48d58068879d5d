package media

import "math"

// Base (1x) transfer rates in bytes per second.
const (
	CDRate  int64 = 176400
	DVDRate int64 = 1387500
	BDRate  int64 = 4500000
)

// SlowDMAFloorSpeed is the CD multiplier below which a slow-DMA recovery only
// applies the absolute floor.
const SlowDMAFloorSpeed = 8

func baseRate(status Status) int64 {
	switch {
	case status.Any(StatusBD):
		return BDRate
	case status.Any(StatusDVD):
		return DVDRate
	default:
		return CDRate
	}
}

// SpeedToRate converts an "x" multiplier for the disc family in status into
// bytes per second.
func SpeedToRate(status Status, speed float64) int64 {
	if speed <= 0 {
		return 0
	}
	return int64(math.Round(speed * float64(baseRate(status))))
}

// RateToSpeed converts bytes per second into an "x" multiplier for the disc
// family in status.
func RateToSpeed(status Status, rate int64) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(rate) / float64(baseRate(status))
}

// ReducedRate returns the write rate to retry with after a buffer underrun:
// three quarters of rate, not dropping below 8x CD when starting above it, and
// never below 1x CD.
func ReducedRate(rate int64) int64 {
	floor := SlowDMAFloorSpeed * CDRate
	next := rate * 3 / 4
	if rate > floor && next < floor {
		next = floor
	}
	if next < CDRate {
		next = CDRate
	}
	return next
}
