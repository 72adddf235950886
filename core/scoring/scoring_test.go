package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/kilianp07/medqueue/core/model"
	"github.com/kilianp07/medqueue/core/prediction"
)

func doc(id string, exp int, rating float64, load, max int, tags ...string) model.Doctor {
	return model.Doctor{ID: id, Available: true, ExperienceYears: exp, PatientRating: rating, CurrentWorkload: load, MaxDailyCases: max, SpecializationTags: tags}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreFormula(t *testing.T) {
	rate := 0.5
	d := doc("d1", 10, 4, 1, 4)
	d.SuccessRate = &rate
	p := model.Patient{Symptoms: []string{"fever"}}
	// (0.25 + 1.2 + 0.1) * 0.75
	want := 1.55 * 0.75
	if got := (Scorer{}).Score(d, p); !almost(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
}

func TestTagMatchBonus(t *testing.T) {
	p := model.Patient{Symptoms: []string{"Chest Pain"}}
	plain := doc("a", 8, 3, 0, 5, "neurology")
	match := doc("a", 8, 3, 0, 5, "chest pain")
	s := Scorer{}
	ps, ms := s.Score(plain, p), s.Score(match, p)
	if !almost(ms, ps*TagBonus) {
		t.Fatalf("expected %v got %v", ps*TagBonus, ms)
	}
	partial := doc("a", 8, 3, 0, 5, "chest")
	if !almost(s.Score(partial, p), ps) {
		t.Fatalf("partial tag must not match")
	}
}

func TestScoreDeterministic(t *testing.T) {
	d := doc("a", 5, 4.5, 2, 6, "fever")
	p := model.Patient{Symptoms: []string{"fever"}}
	s := Scorer{Predictor: prediction.Static(0.3), Weight: 0.1}
	first := s.Score(d, p)
	for i := 0; i < 10; i++ {
		if s.Score(d, p) != first {
			t.Fatalf("score not deterministic")
		}
	}
}

func TestIneligibleScoresZero(t *testing.T) {
	checks := []struct {
		name string
		d    model.Doctor
	}{
		{"no limit", doc("a", 10, 5, 0, 0)},
		{"full", doc("a", 10, 5, 3, 3)},
		{"unavailable", func() model.Doctor { d := doc("a", 10, 5, 0, 3); d.Available = false; return d }()},
	}
	for _, c := range checks {
		if got := (Scorer{}).Score(c.d, model.Patient{}); got != 0 {
			t.Fatalf("%s: expected 0 got %v", c.name, got)
		}
		if _, ok := (Scorer{}).SelectBest([]model.Doctor{c.d}, model.Patient{}); ok {
			t.Fatalf("%s: must not be selected", c.name)
		}
	}
}

type failingPredictor struct{}

func (failingPredictor) Predict(prediction.Features) (float64, error) {
	return 0, errors.New("boom")
}

func TestPredictorBlend(t *testing.T) {
	d := doc("a", 10, 4, 0, 4, "fever")
	p := model.Patient{Symptoms: []string{"fever"}}
	without := (Scorer{}).Score(d, p)
	with := Scorer{Predictor: prediction.Static(1), Weight: 0.5}.Score(d, p)
	if !almost(with, without+0.5*TagBonus) {
		t.Fatalf("expected estimate blended before multipliers: %v vs %v", with, without)
	}
	failed := Scorer{Predictor: failingPredictor{}, Weight: 0.5}.Score(d, p)
	if failed != without {
		t.Fatalf("failed prediction must not change the score")
	}
}

func TestRankTieBreak(t *testing.T) {
	p := model.Patient{}
	a := doc("a", 10, 4, 0, 4)
	b := doc("b", 10, 4, 0, 4)
	c := doc("c", 10, 4, 2, 8)
	r := (Scorer{}).Rank([]model.Doctor{c, b, a}, p)
	if len(r) != 3 {
		t.Fatalf("expected 3 candidates got %d", len(r))
	}
	if r[0].Doctor.ID != "a" || r[1].Doctor.ID != "b" {
		t.Fatalf("unexpected order %s %s %s", r[0].Doctor.ID, r[1].Doctor.ID, r[2].Doctor.ID)
	}
	if r[2].Doctor.ID != "c" {
		t.Fatalf("loaded doctor must rank last, got %s", r[2].Doctor.ID)
	}

	best, ok := (Scorer{}).SelectBest([]model.Doctor{c, b, a}, p)
	if !ok || best.Doctor.ID != "a" {
		t.Fatalf("expected a got %+v", best)
	}
}

func TestRankPrefersLowerLoadOnEqualScore(t *testing.T) {
	p := model.Patient{}
	x := doc("x", 0, 2, 1, 2) // 0.6 * 0.5 = 0.3
	y := doc("y", 0, 1, 0, 2) // 0.3 * 1   = 0.3
	r := (Scorer{}).Rank([]model.Doctor{x, y}, p)
	if !almost(r[0].Score, r[1].Score) {
		t.Fatalf("scores should tie: %v %v", r[0].Score, r[1].Score)
	}
	if r[0].Doctor.ID != "y" {
		t.Fatalf("expected lower load first, got %s", r[0].Doctor.ID)
	}
}
