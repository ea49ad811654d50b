package council

import (
	"fmt"

	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

// angles maps each specialist to the slice of the letter it should dig into.
var angles = map[string]string{
	"technical": "price structure, volume profile, and momentum",
	"sentiment": "community mood, social traction, and narrative strength",
	"macro":     "macro conditions, sector rotation, and the liquidity backdrop",
}

// PlanMissions derives one mission per evaluator from the letter. Pure
// function of the letter content: same letter, same missions, no side
// effects.
func PlanMissions(letter domain.Letter, evaluatorIDs []string) []domain.Mission {
	missions := make([]domain.Mission, 0, len(evaluatorIDs))
	for _, id := range evaluatorIDs {
		angle, ok := angles[id]
		if !ok {
			angle = "its overall merit"
		}
		missions = append(missions, domain.Mission{
			EvaluatorID: id,
			Symbol:      letter.Symbol,
			Thesis:      letter.Thesis,
			Directive: fmt.Sprintf(
				"Evaluate %s with respect to %s. Score how much the submitted thesis holds up from that angle.",
				letter.Symbol, angle),
		})
	}
	return missions
}
