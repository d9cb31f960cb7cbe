package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
	"ground-truth-bench/internal/storage"
)

// QuestionsFile is the name of the question list below the JSON prefix.
const QuestionsFile = "questions.json"

// questionRecord keeps the field names of the data-entry export.
type questionRecord struct {
	ID                 string            `json:"ID,omitempty"`
	Question           string            `json:"Question"`
	IdealAnswer        string            `json:"Ideal Answer"`
	ReferenceDocuments []referenceRecord `json:"Reference Documents"`
	AgentName          string            `json:"Agent Name"`
	Tags               []string          `json:"Tags"`
	CreatedOn          string            `json:"Created On"`
	SubmittedBy        string            `json:"Submitted By"`
}

type referenceRecord struct {
	Name   string `json:"name"`
	Pages  string `json:"pages"`
	Source string `json:"source"`
}

// QuestionRepository appends questions to a JSON list document.
type QuestionRepository struct {
	blobs storage.BlobStore
	key   string

	// read-modify-write of the list within this process
	mu sync.Mutex
}

func NewQuestionRepository(blobs storage.BlobStore, prefix string) *QuestionRepository {
	return &QuestionRepository{
		blobs: blobs,
		key:   storage.JoinKey(prefix, QuestionsFile),
	}
}

func (r *QuestionRepository) Create(ctx context.Context, question *domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read(ctx)
	if err != nil {
		return err
	}
	records = append(records, toRecord(question))

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	if err := r.blobs.Write(ctx, r.key, append(data, '\n')); err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	return nil
}

func (r *QuestionRepository) List(ctx context.Context) ([]domain.Question, error) {
	r.mu.Lock()
	records, err := r.read(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, 0, len(records))
	for _, rec := range records {
		questions = append(questions, fromRecord(rec))
	}
	return questions, nil
}

// read treats a missing document as an empty list. A corrupt document is an
// error so that Create never overwrites it.
func (r *QuestionRepository) read(ctx context.Context) ([]questionRecord, error) {
	data, err := r.blobs.Read(ctx, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []questionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", r.key, repository.ErrCorrupt, err)
	}
	return records, nil
}

func toRecord(q *domain.Question) questionRecord {
	refs := make([]referenceRecord, 0, len(q.ReferenceDocuments))
	for _, ref := range q.ReferenceDocuments {
		refs = append(refs, referenceRecord{Name: ref.Name, Pages: ref.Pages, Source: ref.Source})
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	return questionRecord{
		ID:                 q.ID,
		Question:           q.Text,
		IdealAnswer:        q.IdealAnswer,
		ReferenceDocuments: refs,
		AgentName:          q.AgentName,
		Tags:               tags,
		CreatedOn:          q.CreatedOn.Format(domain.CreatedOnLayout),
		SubmittedBy:        q.SubmittedBy,
	}
}

func fromRecord(rec questionRecord) domain.Question {
	q := domain.Question{
		ID:          rec.ID,
		Text:        rec.Question,
		IdealAnswer: rec.IdealAnswer,
		AgentName:   rec.AgentName,
		Tags:        rec.Tags,
		SubmittedBy: rec.SubmittedBy,
	}
	if created, err := time.Parse(domain.CreatedOnLayout, rec.CreatedOn); err == nil {
		q.CreatedOn = created
	}
	for _, ref := range rec.ReferenceDocuments {
		q.ReferenceDocuments = append(q.ReferenceDocuments, domain.ReferenceDocument{
			Name:   ref.Name,
			Pages:  ref.Pages,
			Source: ref.Source,
		})
	}
	return q
}

var _ repository.QuestionRepository = (*QuestionRepository)(nil)
