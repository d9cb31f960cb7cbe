package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
)

// SubmitQuestionInput is a question as entered in the form.
type SubmitQuestionInput struct {
	Question    string
	IdealAnswer string
	AgentName   string
	Tags        []string
	References  []domain.ReferenceDocument
	SubmittedBy string
}

// QuestionService validates and stores ground truth questions.
type QuestionService interface {
	Submit(ctx context.Context, in SubmitQuestionInput) (*domain.Question, error)
	List(ctx context.Context) ([]domain.Question, error)
	Tags(ctx context.Context) ([]string, error)
}

type questionService struct {
	questions repository.QuestionRepository
	now       func() time.Time
}

func NewQuestionService(questions repository.QuestionRepository, now func() time.Time) QuestionService {
	if now == nil {
		now = time.Now
	}
	return &questionService{questions: questions, now: now}
}

func (s *questionService) Submit(ctx context.Context, in SubmitQuestionInput) (*domain.Question, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Question) == "" {
		fields["question"] = "Question is required."
	}
	if strings.TrimSpace(in.IdealAnswer) == "" {
		fields["ideal_answer"] = "Ideal Answer is required."
	}
	if strings.TrimSpace(in.AgentName) == "" {
		fields["agent_name"] = "Agent Name is required."
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}

	submittedBy := strings.TrimSpace(in.SubmittedBy)
	if submittedBy == "" {
		submittedBy = "Unknown"
	}

	question := &domain.Question{
		ID:                 uuid.NewString(),
		Text:               strings.TrimSpace(in.Question),
		IdealAnswer:        strings.TrimSpace(in.IdealAnswer),
		AgentName:          strings.TrimSpace(in.AgentName),
		Tags:               normalizeTags(in.Tags),
		ReferenceDocuments: normalizeReferences(in.References),
		CreatedOn:          truncateToDay(s.now()),
		SubmittedBy:        submittedBy,
	}

	if err := s.questions.Create(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *questionService) List(ctx context.Context) ([]domain.Question, error) {
	return s.questions.List(ctx)
}

// Tags returns the sorted union of every question's tags.
func (s *questionService) Tags(ctx context.Context) ([]string, error) {
	questions, err := s.questions.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	tags := []string{}
	for _, q := range questions {
		for _, tag := range q.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// normalizeTags trims and de-duplicates tags, keeping the first occurrence.
func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

func normalizeReferences(raw []domain.ReferenceDocument) []domain.ReferenceDocument {
	var refs []domain.ReferenceDocument
	for _, ref := range raw {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			continue
		}
		source := strings.TrimSpace(ref.Source)
		if source == "" {
			source = domain.SourceUnknown
		}
		refs = append(refs, domain.ReferenceDocument{
			Name:   name,
			Pages:  strings.TrimSpace(ref.Pages),
			Source: source,
		})
	}
	return refs
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
