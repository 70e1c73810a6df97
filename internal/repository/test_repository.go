package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// TestRepository loads immutable test definitions. Authoring lives in the
// platform backend; this engine only reads.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a full test definition: the test row plus its ordered
// sections and questions.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	var settings []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, duration_minutes, passing_score, instructions, settings, status, created_at, updated_at
		 FROM tests
		 WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.PassingScore, &t.Instructions, &settings, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}

	sections, err := r.loadSections(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Sections = sections
	return t, nil
}

// ListPublished retrieves all published tests, without sections. Used to
// prewarm the payload cache at startup.
func (r *TestRepository) ListPublished(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, duration_minutes, passing_score, instructions, settings, status, created_at, updated_at
		 FROM tests
		 WHERE status = $1
		 ORDER BY created_at`, model.TestStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		var settings []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.PassingScore, &t.Instructions, &settings, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &t.Settings); err != nil {
				return nil, fmt.Errorf("decode settings: %w", err)
			}
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (r *TestRepository) loadSections(ctx context.Context, testID uuid.UUID) ([]model.Section, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_minutes, question_type
		 FROM sections
		 WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.DurationMinutes, &sec.QuestionType); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sections {
		questions, err := r.loadQuestions(ctx, sections[i].ID)
		if err != nil {
			return nil, err
		}
		sections[i].Questions = questions
	}
	return sections, nil
}

func (r *TestRepository) loadQuestions(ctx context.Context, sectionID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, text, type, options, correct_answer, points
		 FROM questions
		 WHERE section_id = $1
		 ORDER BY order_num`, sectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, correct []byte
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &options, &correct, &q.Points); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options for %s: %w", q.ID, err)
			}
		}
		if len(correct) > 0 {
			if err := json.Unmarshal(correct, &q.CorrectAnswer); err != nil {
				return nil, fmt.Errorf("decode answer key for %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
