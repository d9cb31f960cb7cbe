package repository

import (
	"context"

	"ground-truth-bench/internal/domain"
)

// QuestionRepository exposes persistence operations for submitted questions.
type QuestionRepository interface {
	Create(ctx context.Context, question *domain.Question) error
	// List returns every question, oldest first.
	List(ctx context.Context) ([]domain.Question, error)
}
