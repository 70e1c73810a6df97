package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the lifecycle states of a test definition.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeWrittenAnswer  QuestionType = "WRITTEN_ANSWER"
	QuestionTypeCoding         QuestionType = "CODING"
)

// TestSettings holds the per-test configuration switches recognized by the
// session engine. Unknown options supplied by the authoring tool are dropped
// at load time.
type TestSettings struct {
	ShuffleQuestions    bool `json:"shuffle_questions"`
	PreventTabSwitching bool `json:"prevent_tab_switching"`
	AllowCalculator     bool `json:"allow_calculator"`
	AutoSubmit          bool `json:"auto_submit"`
}

// Test is the immutable definition of an assessment: ordered sections, each
// with an ordered list of questions. A loaded Test is shared read-only across
// all concurrent candidate sessions.
type Test struct {
	ID              uuid.UUID    `json:"id"`
	Name            string       `json:"name"`
	DurationMinutes int          `json:"duration_minutes"`
	PassingScore    int          `json:"passing_score"`
	Instructions    string       `json:"instructions"`
	Settings        TestSettings `json:"settings"`
	Status          TestStatus   `json:"status"`
	Sections        []Section    `json:"sections"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Section groups questions. Its duration is informational only — the test
// duration is the single binding time constraint.
type Section struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	DurationMinutes int          `json:"duration_minutes"`
	QuestionType    QuestionType `json:"question_type"`
	Questions       []Question   `json:"questions"`
}

// Question is a single test question. Options and CorrectAnswer are only
// populated for multiple-choice questions; CorrectAnswer may hold several
// option values for multi-select.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer []string     `json:"correct_answer,omitempty"`
	Points        int          `json:"points"`
}

// AutoScorable reports whether the engine can grade this question without
// human review.
func (q Question) AutoScorable() bool {
	return q.Type == QuestionTypeMultipleChoice
}

// AllQuestions returns the test's questions flattened in section order.
func (t *Test) AllQuestions() []Question {
	var qs []Question
	for _, sec := range t.Sections {
		qs = append(qs, sec.Questions...)
	}
	return qs
}

// QuestionCount returns the total number of questions across all sections.
func (t *Test) QuestionCount() int {
	n := 0
	for _, sec := range t.Sections {
		n += len(sec.Questions)
	}
	return n
}

// AvailablePoints returns the sum of point values across all questions.
func (t *Test) AvailablePoints() int {
	total := 0
	for _, q := range t.AllQuestions() {
		total += q.Points
	}
	return total
}

// Validate checks the structural invariants of an active test definition.
func (t *Test) Validate() error {
	if t.DurationMinutes <= 0 {
		return errors.New("test duration must be positive")
	}
	if t.PassingScore < 0 || t.PassingScore > 100 {
		return errors.New("passing score must be within 0-100")
	}
	if t.Status != TestStatusDraft && len(t.Sections) == 0 {
		return errors.New("active test must have at least one section")
	}
	for _, sec := range t.Sections {
		for _, q := range sec.Questions {
			if q.Points < 0 {
				return fmt.Errorf("question %s has negative points", q.ID)
			}
			if q.Type != QuestionTypeMultipleChoice {
				continue
			}
			if len(q.Options) == 0 {
				return fmt.Errorf("multiple-choice question %s has no options", q.ID)
			}
			if len(q.CorrectAnswer) == 0 {
				return fmt.Errorf("multiple-choice question %s has no correct answer", q.ID)
			}
			for _, ans := range q.CorrectAnswer {
				if !contains(q.Options, ans) {
					return fmt.Errorf("question %s: correct answer %q is not an option", q.ID, ans)
				}
			}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ─── Candidate-facing payload (no correct answers) ──────────────────

// TestPayload is the Redis-cached test document sent to candidates.
type TestPayload struct {
	TestID          uuid.UUID        `json:"test_id"`
	Name            string           `json:"name"`
	DurationMinutes int              `json:"duration_minutes"`
	Instructions    string           `json:"instructions"`
	Settings        TestSettings     `json:"settings"`
	Sections        []PayloadSection `json:"sections"`
}

// PayloadSection mirrors Section without answer keys.
type PayloadSection struct {
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	Questions []PayloadQuestion `json:"questions"`
}

// PayloadQuestion is a question stripped of its correct answer.
type PayloadQuestion struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
}

// PayloadFor builds the candidate-facing payload for a test.
func PayloadFor(t *Test) *TestPayload {
	p := &TestPayload{
		TestID:          t.ID,
		Name:            t.Name,
		DurationMinutes: t.DurationMinutes,
		Instructions:    t.Instructions,
		Settings:        t.Settings,
	}
	for _, sec := range t.Sections {
		ps := PayloadSection{ID: sec.ID, Title: sec.Title}
		for _, q := range sec.Questions {
			ps.Questions = append(ps.Questions, PayloadQuestion{
				ID:      q.ID,
				Text:    q.Text,
				Type:    q.Type,
				Options: q.Options,
				Points:  q.Points,
			})
		}
		p.Sections = append(p.Sections, ps)
	}
	return p
}
