package logic

import (
	"math/rand"

	"github.com/klimakov/adrotator/internal/models"
)

// randFn is the random source for weighted selection, replaceable in tests.
var randFn = rand.Float64

// SelectWeighted picks one creative by weighted random draw. The draw walks
// the candidates in order, subtracting each candidate's selection weight
// from a uniform value in [0, total); the candidate that crosses zero wins.
// The last candidate catches any floating point remainder. Returns nil for
// an empty candidate set.
func SelectWeighted(creatives []models.Creative) *models.Creative {
	if len(creatives) == 0 {
		return nil
	}
	total := 0
	for i := range creatives {
		total += creatives[i].SelectionWeight()
	}
	random := randFn() * float64(total)
	for i := range creatives {
		random -= float64(creatives[i].SelectionWeight())
		if random <= 0 {
			return &creatives[i]
		}
	}
	return &creatives[len(creatives)-1]
}
