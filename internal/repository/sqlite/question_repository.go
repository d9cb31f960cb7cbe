package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
)

type QuestionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

type referenceColumn struct {
	Name   string `json:"name"`
	Pages  string `json:"pages"`
	Source string `json:"source"`
}

func (r *QuestionRepository) Create(ctx context.Context, question *domain.Question) error {
	tags := question.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	refs := make([]referenceColumn, 0, len(question.ReferenceDocuments))
	for _, ref := range question.ReferenceDocuments {
		refs = append(refs, referenceColumn(ref))
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode reference documents: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO questions (id, question, ideal_answer, agent_name, tags, reference_documents, created_on, submitted_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		question.ID,
		question.Text,
		question.IdealAnswer,
		question.AgentName,
		string(tagsJSON),
		string(refsJSON),
		question.CreatedOn.Format(domain.CreatedOnLayout),
		question.SubmittedBy,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *QuestionRepository) List(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, ideal_answer, agent_name, tags, reference_documents, created_on, submitted_by
FROM questions
ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *question)
	}
	return questions, rows.Err()
}

func scanQuestion(scanner interface {
	Scan(dest ...any) error
}) (*domain.Question, error) {
	var (
		question  domain.Question
		tagsJSON  string
		refsJSON  string
		createdOn string
	)
	if err := scanner.Scan(
		&question.ID,
		&question.Text,
		&question.IdealAnswer,
		&question.AgentName,
		&tagsJSON,
		&refsJSON,
		&createdOn,
		&question.SubmittedBy,
	); err != nil {
		return nil, fmt.Errorf("scan question: %w", err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &question.Tags); err != nil {
		return nil, fmt.Errorf("question %s tags: %w: %v", question.ID, repository.ErrCorrupt, err)
	}
	var refs []referenceColumn
	if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
		return nil, fmt.Errorf("question %s references: %w: %v", question.ID, repository.ErrCorrupt, err)
	}
	for _, ref := range refs {
		question.ReferenceDocuments = append(question.ReferenceDocuments, domain.ReferenceDocument(ref))
	}
	if ts, err := time.Parse(domain.CreatedOnLayout, createdOn); err == nil {
		question.CreatedOn = ts
	}
	return &question, nil
}

var _ repository.QuestionRepository = (*QuestionRepository)(nil)
