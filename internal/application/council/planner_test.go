package council

import (
	"reflect"
	"testing"

	domain "github.com/bryanwahyu/alphacouncil/internal/domain/council"
)

func TestPlanMissionsOnePerEvaluator(t *testing.T) {
	letter := domain.Letter{Symbol: "NEO", Thesis: "breakout incoming", SubmitterID: "alice"}
	ids := []string{"technical", "sentiment", "macro"}

	missions := PlanMissions(letter, ids)
	if len(missions) != len(ids) {
		t.Fatalf("missions = %d, want %d", len(missions), len(ids))
	}
	for i, m := range missions {
		if m.EvaluatorID != ids[i] {
			t.Fatalf("mission %d evaluator = %s, want %s", i, m.EvaluatorID, ids[i])
		}
		if m.Symbol != letter.Symbol || m.Thesis != letter.Thesis {
			t.Fatalf("mission %d does not carry the letter content: %+v", i, m)
		}
		if m.Directive == "" {
			t.Fatalf("mission %d has empty directive", i)
		}
	}
	// Each specialist gets a distinct angle.
	if missions[0].Directive == missions[1].Directive {
		t.Fatal("technical and sentiment share a directive")
	}
}

func TestPlanMissionsDeterministic(t *testing.T) {
	letter := domain.Letter{Symbol: "GAS", Thesis: "undervalued", SubmitterID: "bob"}
	ids := []string{"technical", "sentiment", "macro"}

	first := PlanMissions(letter, ids)
	second := PlanMissions(letter, ids)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("planning is not deterministic for identical letters")
	}
}

func TestPlanMissionsUnknownEvaluator(t *testing.T) {
	missions := PlanMissions(domain.Letter{Symbol: "NEO", Thesis: "up"}, []string{"quant"})
	if len(missions) != 1 || missions[0].Directive == "" {
		t.Fatalf("unknown evaluator should still get a mission, got %+v", missions)
	}
}
