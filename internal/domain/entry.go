package domain

import (
	"math"
	"time"
)

// Entry represents one recorded espresso shot.
type Entry struct {
	ID             int64
	UserID         int64
	Coffee         string
	GrinderSetting string
	InputWeight    float64
	OutputWeight   float64
	TasteComment   string
	CreatedAt      time.Time
}

// ExtractionRatio computes output/input rounded to two decimal places.
// An input weight of zero yields 0 rather than dividing by zero.
// The ratio is always derived at read time and never stored, so history
// follows a single formula.
func ExtractionRatio(inputWeight, outputWeight float64) float64 {
	if inputWeight == 0 {
		return 0
	}
	return math.Round(outputWeight/inputWeight*100) / 100
}
