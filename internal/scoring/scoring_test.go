package scoring

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

func singleChoiceTest(passingScore int) (*model.Test, uuid.UUID) {
	qid := uuid.New()
	test := &model.Test{
		ID:              uuid.New(),
		Name:            "Screening",
		DurationMinutes: 30,
		PassingScore:    passingScore,
		Status:          model.TestStatusPublished,
		Sections: []model.Section{{
			ID:    uuid.New(),
			Title: "MCQ",
			Questions: []model.Question{{
				ID:            qid,
				Text:          "Pick B",
				Type:          model.QuestionTypeMultipleChoice,
				Options:       []string{"A", "B", "C"},
				CorrectAnswer: []string{"B"},
				Points:        10,
			}},
		}},
	}
	return test, qid
}

func TestSingleQuestionOutcomes(t *testing.T) {
	test, qid := singleChoiceTest(70)
	now := time.Now()

	cases := []struct {
		name       string
		answers    map[string]model.Answer
		wantScore  int
		wantStatus model.ResultStatus
	}{
		{"correct", map[string]model.Answer{qid.String(): {"B"}}, 100, model.ResultStatusPassed},
		{"wrong", map[string]model.Answer{qid.String(): {"A"}}, 0, model.ResultStatusFailed},
		{"unanswered", map[string]model.Answer{}, 0, model.ResultStatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Compute(test, uuid.New(), uuid.New(), tc.answers, now)
			if r.Score != tc.wantScore {
				t.Fatalf("score = %d, want %d", r.Score, tc.wantScore)
			}
			if r.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", r.Status, tc.wantStatus)
			}
			if r.ResultsDeclared {
				t.Fatalf("fresh results must be undeclared")
			}
			if r.NeedsReview {
				t.Fatalf("pure multiple-choice test must not need review")
			}
		})
	}
}

func TestMultiSelectSetEquality(t *testing.T) {
	qid := uuid.New()
	test := &model.Test{
		ID:           uuid.New(),
		PassingScore: 50,
		Sections: []model.Section{{
			Questions: []model.Question{{
				ID:            qid,
				Type:          model.QuestionTypeMultipleChoice,
				Options:       []string{"A", "B", "C", "D"},
				CorrectAnswer: []string{"B", "D"},
				Points:        4,
			}},
		}},
	}

	// Order and duplicates are irrelevant; membership is not.
	full := Compute(test, uuid.New(), uuid.New(),
		map[string]model.Answer{qid.String(): {"D", "B", "D"}}, time.Now())
	if full.Score != 100 {
		t.Fatalf("set-equal multi-select must score 100, got %d", full.Score)
	}

	partial := Compute(test, uuid.New(), uuid.New(),
		map[string]model.Answer{qid.String(): {"B"}}, time.Now())
	if partial.Score != 0 {
		t.Fatalf("partial selection earns nothing, got %d", partial.Score)
	}

	superset := Compute(test, uuid.New(), uuid.New(),
		map[string]model.Answer{qid.String(): {"B", "D", "A"}}, time.Now())
	if superset.Score != 0 {
		t.Fatalf("superset selection earns nothing, got %d", superset.Score)
	}
}

func TestUngradedTypesContributeZeroAndFlagReview(t *testing.T) {
	mcq := uuid.New()
	essay := uuid.New()
	test := &model.Test{
		ID:           uuid.New(),
		PassingScore: 40,
		Sections: []model.Section{{
			Questions: []model.Question{
				{
					ID:            mcq,
					Type:          model.QuestionTypeMultipleChoice,
					Options:       []string{"A", "B"},
					CorrectAnswer: []string{"A"},
					Points:        10,
				},
				{
					ID:     essay,
					Type:   model.QuestionTypeWrittenAnswer,
					Points: 10,
				},
			},
		}},
	}

	r := Compute(test, uuid.New(), uuid.New(), map[string]model.Answer{
		mcq.String():   {"A"},
		essay.String(): {"a long written answer"},
	}, time.Now())

	// 10 of 20 available points: the essay's points stay unawarded pending
	// external grading, but scoring must not fail.
	if r.Score != 50 {
		t.Fatalf("score = %d, want 50", r.Score)
	}
	if !r.NeedsReview {
		t.Fatalf("result with written answers must be flagged for review")
	}
	if r.Status != model.ResultStatusPassed {
		t.Fatalf("status = %s, want PASSED", r.Status)
	}
}

func TestWeightedPointsAndRounding(t *testing.T) {
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	mk := func(id uuid.UUID, points int) model.Question {
		return model.Question{
			ID:            id,
			Type:          model.QuestionTypeMultipleChoice,
			Options:       []string{"A", "B"},
			CorrectAnswer: []string{"A"},
			Points:        points,
		}
	}
	test := &model.Test{
		ID:           uuid.New(),
		PassingScore: 70,
		Sections: []model.Section{{
			Questions: []model.Question{mk(q1, 1), mk(q2, 1), mk(q3, 1)},
		}},
	}

	r := Compute(test, uuid.New(), uuid.New(), map[string]model.Answer{
		q1.String(): {"A"},
		q2.String(): {"A"},
	}, time.Now())
	// 2/3 = 66.67 → rounds to 67.
	if r.Score != 67 {
		t.Fatalf("score = %d, want 67", r.Score)
	}
	if r.Status != model.ResultStatusFailed {
		t.Fatalf("67 < 70 must fail, got %s", r.Status)
	}
}

func TestZeroAvailablePoints(t *testing.T) {
	test := &model.Test{
		ID:           uuid.New(),
		PassingScore: 0,
		Sections: []model.Section{{
			Questions: []model.Question{{
				ID:     uuid.New(),
				Type:   model.QuestionTypeCoding,
				Points: 0,
			}},
		}},
	}
	r := Compute(test, uuid.New(), uuid.New(), nil, time.Now())
	if r.Score != 0 {
		t.Fatalf("score with no available points = %d, want 0", r.Score)
	}
	if r.Status != model.ResultStatusPassed {
		t.Fatalf("passingScore 0 means 0 passes, got %s", r.Status)
	}
	if !r.NeedsReview {
		t.Fatalf("coding-only test must be flagged for review")
	}
}
