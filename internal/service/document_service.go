package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/sharepoint"
	"ground-truth-bench/internal/storage"
)

// ErrNoDocumentBackend is returned when no document host could be reached.
var ErrNoDocumentBackend = errors.New("no document backend available")

// SharePointClient is the part of the Graph client used for documents.
type SharePointClient interface {
	ListFiles(ctx context.Context, conn *sharepoint.Connection) ([]sharepoint.File, error)
	Upload(ctx context.Context, conn *sharepoint.Connection, name string, body io.Reader) error
	Refresh(ctx context.Context, conn *sharepoint.Connection, now time.Time) error
}

// BackendResult is the outcome of an upload to one document host.
type BackendResult struct {
	Backend string `json:"backend"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type UploadResult struct {
	Name     string          `json:"name"`
	Backends []BackendResult `json:"backends"`
}

// DocumentService lists and uploads reference documents across S3 and SharePoint.
// A nil connection means the session holds no SharePoint credential and only
// the object store is used.
type DocumentService interface {
	ListFiles(ctx context.Context, conn *sharepoint.Connection) ([]domain.DocumentFile, error)
	UniqueFilename(ctx context.Context, conn *sharepoint.Connection, name string) (string, error)
	Upload(ctx context.Context, conn *sharepoint.Connection, name string, data []byte) (*UploadResult, error)
	Sources(ctx context.Context, conn *sharepoint.Connection, names []string) (map[string]string, error)
}

type DocumentServiceConfig struct {
	Objects    storage.ObjectStore
	Prefix     string
	SharePoint SharePointClient
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

type documentService struct {
	objects    storage.ObjectStore
	prefix     string
	sharePoint SharePointClient
	logger     logrus.FieldLogger
	now        func() time.Time
}

func NewDocumentService(cfg DocumentServiceConfig) DocumentService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &documentService{
		objects:    cfg.Objects,
		prefix:     cfg.Prefix,
		sharePoint: cfg.SharePoint,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// ListFiles merges both listings by name. SharePoint metadata wins over S3
// metadata and the sources of a name are joined in sorted order.
func (s *documentService) ListFiles(ctx context.Context, conn *sharepoint.Connection) ([]domain.DocumentFile, error) {
	type entry struct {
		file    domain.DocumentFile
		sources map[string]struct{}
	}
	merged := map[string]*entry{}
	add := func(name, source, modified, createdBy string, authoritative bool) {
		e, ok := merged[name]
		if !ok {
			e = &entry{
				file:    domain.DocumentFile{Name: name, LastModified: modified, CreatedBy: createdBy},
				sources: map[string]struct{}{},
			}
			merged[name] = e
		} else if authoritative {
			e.file.LastModified = modified
			e.file.CreatedBy = createdBy
		}
		e.sources[source] = struct{}{}
	}

	var failures []error
	reached := 0

	if s.objects != nil {
		objects, err := s.objects.ListObjects(ctx, s.prefix)
		if err != nil {
			s.logger.WithError(err).WithField("backend", domain.SourceS3).Warn("list documents")
			failures = append(failures, err)
		} else {
			reached++
			for _, obj := range objects {
				modified := ""
				if obj.LastModified != nil {
					modified = obj.LastModified.UTC().Format(domain.CreatedOnLayout)
				}
				add(obj.Name(), domain.SourceS3, modified, domain.SourceUnknown, false)
			}
		}
	}

	if files, ok, err := s.sharePointFiles(ctx, conn); ok {
		if err != nil {
			s.logger.WithError(err).WithField("backend", domain.SourceSharePoint).Warn("list documents")
			failures = append(failures, err)
		} else {
			reached++
			for _, f := range files {
				modified := ""
				if !f.LastModified.IsZero() {
					modified = f.LastModified.UTC().Format(domain.CreatedOnLayout)
				}
				createdBy := f.CreatedBy
				if createdBy == "" {
					createdBy = domain.SourceUnknown
				}
				add(f.Name, domain.SourceSharePoint, modified, createdBy, true)
			}
		}
	}

	if reached == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoDocumentBackend, errors.Join(failures...))
	}

	files := make([]domain.DocumentFile, 0, len(merged))
	for _, e := range merged {
		e.file.Sources = sortedKeys(e.sources)
		files = append(files, e.file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// UniqueFilename returns name when no host has it, otherwise "base copy(N).ext"
// with the smallest free N.
func (s *documentService) UniqueFilename(ctx context.Context, conn *sharepoint.Connection, name string) (string, error) {
	name, err := cleanFilename(name)
	if err != nil {
		return "", err
	}
	files, err := s.ListFiles(ctx, conn)
	if err != nil {
		return "", err
	}
	existing := make(map[string]struct{}, len(files))
	for _, f := range files {
		existing[f.Name] = struct{}{}
	}
	return uniqueName(name, existing), nil
}

// Upload stores data under a unique name on every available host. Partial
// failures are reported per backend; an error is returned only when nothing
// was stored.
func (s *documentService) Upload(ctx context.Context, conn *sharepoint.Connection, name string, data []byte) (*UploadResult, error) {
	name, err := s.UniqueFilename(ctx, conn, name)
	if err != nil {
		return nil, err
	}
	result := &UploadResult{Name: name}
	log := s.logger.WithField("file", name)

	if s.sharePoint != nil && conn != nil {
		res := BackendResult{Backend: domain.SourceSharePoint, OK: true}
		err := s.sharePoint.Refresh(ctx, conn, s.now())
		if err == nil {
			err = s.sharePoint.Upload(ctx, conn, name, bytes.NewReader(data))
		}
		if err != nil {
			log.WithError(err).WithField("backend", domain.SourceSharePoint).Error("upload document")
			res = BackendResult{Backend: domain.SourceSharePoint, Error: err.Error()}
		}
		result.Backends = append(result.Backends, res)
	}

	if s.objects != nil {
		res := BackendResult{Backend: domain.SourceS3, OK: true}
		if err := s.objects.Upload(ctx, storage.JoinKey(s.prefix, name), bytes.NewReader(data)); err != nil {
			log.WithError(err).WithField("backend", domain.SourceS3).Error("upload document")
			res = BackendResult{Backend: domain.SourceS3, Error: err.Error()}
		}
		result.Backends = append(result.Backends, res)
	}

	for _, res := range result.Backends {
		if res.OK {
			log.Info("document uploaded")
			return result, nil
		}
	}
	return result, ErrNoDocumentBackend
}

// Sources maps each name to the hosts holding it, e.g. "S3, SharePoint", or
// "Unknown" when no host lists it.
func (s *documentService) Sources(ctx context.Context, conn *sharepoint.Connection, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	files, err := s.ListFiles(ctx, conn)
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]string, len(files))
	for _, f := range files {
		byName[f.Name] = f.Sources
	}
	for _, name := range names {
		if sources, ok := byName[name]; ok && len(sources) > 0 {
			out[name] = strings.Join(sources, ", ")
		} else {
			out[name] = domain.SourceUnknown
		}
	}
	return out, nil
}

// sharePointFiles reports ok=false when SharePoint is not in use for this call.
func (s *documentService) sharePointFiles(ctx context.Context, conn *sharepoint.Connection) ([]sharepoint.File, bool, error) {
	if s.sharePoint == nil || conn == nil {
		return nil, false, nil
	}
	if err := s.sharePoint.Refresh(ctx, conn, s.now()); err != nil {
		return nil, true, err
	}
	files, err := s.sharePoint.ListFiles(ctx, conn)
	return files, true, err
}

func uniqueName(name string, existing map[string]struct{}) string {
	if _, taken := existing[name]; !taken {
		return name
	}
	base, ext := name, ""
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		base, ext = name[:idx], name[idx:]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s copy(%d)%s", base, n, ext)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

func cleanFilename(name string) (string, error) {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", domain.NewValidationError(map[string]string{"file": "A file name is required."})
	}
	return name, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
