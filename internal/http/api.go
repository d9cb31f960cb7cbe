package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/auth"
	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/service"
	"ground-truth-bench/internal/sharepoint"
)

const (
	MessageMissingCredentials = "Please enter both username and password."

	defaultMaxUploadBytes = 50 << 20
)

// Connector obtains the downstream SharePoint credential at login.
type Connector interface {
	Connect(ctx context.Context) (*sharepoint.Connection, error)
}

type Config struct {
	Authenticator  *auth.Authenticator
	Guard          *auth.SessionGuard
	Sessions       *SessionTable
	Cookies        CookieCodec
	SecureCookie   bool
	Questions      service.QuestionService
	Documents      service.DocumentService
	SharePoint     Connector
	Throttle       *LoginThrottle
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         logrus.FieldLogger
}

// Handler wires HTTP routes to the auth core and domain services.
type Handler struct {
	authenticator  *auth.Authenticator
	guard          *auth.SessionGuard
	sessions       *SessionTable
	cookies        CookieCodec
	secureCookie   bool
	questions      service.QuestionService
	documents      service.DocumentService
	sharePoint     Connector
	throttle       *LoginThrottle
	allowedOrigins []string
	maxUploadBytes int64
	logger         logrus.FieldLogger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionTable()
	}
	if cfg.Guard == nil {
		cfg.Guard = auth.NewSessionGuard(auth.DefaultSessionTimeout, nil)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		authenticator:  cfg.Authenticator,
		guard:          cfg.Guard,
		sessions:       cfg.Sessions,
		cookies:        cfg.Cookies,
		secureCookie:   cfg.SecureCookie,
		questions:      cfg.Questions,
		documents:      cfg.Documents,
		sharePoint:     cfg.SharePoint,
		throttle:       cfg.Throttle,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware(h.allowedOrigins))

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		login := []gin.HandlerFunc{h.login}
		if h.throttle != nil {
			login = append([]gin.HandlerFunc{h.throttle.Middleware()}, login...)
		}
		api.POST("/login", login...)
		api.POST("/logout", h.logout)

		authed := api.Group("", h.requireSession())
		authed.GET("/session", h.sessionInfo)
		authed.GET("/questions", h.listQuestions)
		authed.POST("/questions", h.submitQuestion)
		authed.GET("/tags", h.listTags)
		authed.GET("/documents", h.listDocuments)
		authed.POST("/documents", h.uploadDocument)
		authed.GET("/documents/unique-name", h.uniqueName)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageMissingCredentials})
		return
	}

	sess := auth.NewSession(time.Now())
	if err := h.authenticator.Authenticate(c.Request.Context(), sess, req.Username, req.Password); err != nil {
		var loginErr *auth.LoginError
		if !errors.As(err, &loginErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, auth.ErrRateLimited) {
			retry := int(loginErr.RetryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", fmt.Sprint(retry))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": loginErr.Message, "retry_after": retry})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": loginErr.Message})
		return
	}

	// a previous session behind this cookie ends only once the new login holds
	if old, ok := h.lookupSession(c); ok {
		h.endSession(old)
	}

	resp := gin.H{
		"username":      sess.Username,
		"last_activity": sess.LastActivity.UTC().Format(time.RFC3339),
	}

	var graph *sharepoint.Connection
	if h.sharePoint != nil {
		conn, err := h.sharePoint.Connect(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).WithField("username", sess.Username).Warn("sharepoint connection failed")
			resp["warnings"] = []string{"SharePoint is unavailable; documents are served from S3 only."}
		} else {
			graph = conn
		}
	}
	resp["sharepoint"] = graph != nil

	rec := h.sessions.Start(*sess, graph)
	value, err := h.cookies.Encode(rec.id)
	if err != nil {
		h.sessions.Delete(rec.id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	setSessionCookie(c.Writer, value, h.secureCookie)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) logout(c *gin.Context) {
	if rec, ok := h.lookupSession(c); ok {
		h.endSession(rec)
	}
	clearSessionCookie(c.Writer, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out. Downstream credentials were discarded."})
}

func (h *Handler) endSession(rec *sessionRecord) {
	rec.mu.Lock()
	h.authenticator.Logout(&rec.session)
	rec.dropGraph()
	rec.mu.Unlock()
	h.sessions.Delete(rec.id)
}

func (h *Handler) sessionInfo(c *gin.Context) {
	rec := currentSession(c)
	rec.mu.Lock()
	username := rec.session.Username
	last := rec.session.LastActivity
	connected := rec.graph != nil
	rec.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"username":      username,
		"last_activity": last.UTC().Format(time.RFC3339),
		"expires_at":    last.Add(h.guard.Timeout()).UTC().Format(time.RFC3339),
		"sharepoint":    connected,
	})
}

type QuestionResponse struct {
	ID                 string              `json:"id"`
	Question           string              `json:"question"`
	IdealAnswer        string              `json:"ideal_answer"`
	AgentName          string              `json:"agent_name"`
	Tags               []string            `json:"tags"`
	ReferenceDocuments []ReferenceResponse `json:"reference_documents"`
	CreatedOn          string              `json:"created_on"`
	SubmittedBy        string              `json:"submitted_by"`
}

type ReferenceResponse struct {
	Name   string `json:"name"`
	Pages  string `json:"pages"`
	Source string `json:"source"`
}

type submitQuestionRequest struct {
	Question           string   `json:"question"`
	IdealAnswer        string   `json:"ideal_answer"`
	AgentName          string   `json:"agent_name"`
	Tags               []string `json:"tags"`
	ReferenceDocuments []struct {
		Name  string `json:"name"`
		Pages string `json:"pages"`
	} `json:"reference_documents"`
}

func (h *Handler) listQuestions(c *gin.Context) {
	questions, err := h.questions.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]QuestionResponse, len(questions))
	for i := range questions {
		resp[i] = questionToResponse(questions[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) submitQuestion(c *gin.Context) {
	var req submitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rec := currentSession(c)

	refs := make([]domain.ReferenceDocument, 0, len(req.ReferenceDocuments))
	names := make([]string, 0, len(req.ReferenceDocuments))
	for _, ref := range req.ReferenceDocuments {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			continue
		}
		refs = append(refs, domain.ReferenceDocument{Name: name, Pages: ref.Pages})
		names = append(names, name)
	}

	if len(names) > 0 {
		conn := rec.graphConnection()
		sources, err := h.documents.Sources(c.Request.Context(), conn, names)
		rec.storeGraph(conn)
		if err != nil {
			h.logger.WithError(err).Warn("resolve reference sources")
		}
		for i := range refs {
			refs[i].Source = sources[refs[i].Name]
		}
	}

	rec.mu.Lock()
	username := rec.session.Username
	rec.mu.Unlock()

	question, err := h.questions.Submit(c.Request.Context(), service.SubmitQuestionInput{
		Question:    req.Question,
		IdealAnswer: req.IdealAnswer,
		AgentName:   req.AgentName,
		Tags:        req.Tags,
		References:  refs,
		SubmittedBy: username,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, questionToResponse(*question))
}

func (h *Handler) listTags(c *gin.Context) {
	tags, err := h.questions.Tags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tags)
}

type DocumentResponse struct {
	Name         string   `json:"name"`
	LastModified string   `json:"last_modified"`
	CreatedBy    string   `json:"created_by"`
	Sources      []string `json:"sources"`
	Storage      string   `json:"storage"`
}

func (h *Handler) listDocuments(c *gin.Context) {
	rec := currentSession(c)
	conn := rec.graphConnection()
	files, err := h.documents.ListFiles(c.Request.Context(), conn)
	rec.storeGraph(conn)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := make([]DocumentResponse, len(files))
	for i, f := range files {
		resp[i] = DocumentResponse{
			Name:         f.Name,
			LastModified: f.LastModified,
			CreatedBy:    f.CreatedBy,
			Sources:      f.Sources,
			Storage:      strings.Join(f.Sources, ", "),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) uniqueName(c *gin.Context) {
	rec := currentSession(c)
	conn := rec.graphConnection()
	name, err := h.documents.UniqueFilename(c.Request.Context(), conn, c.Query("name"))
	rec.storeGraph(conn)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (h *Handler) uploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := currentSession(c)
	conn := rec.graphConnection()
	result, err := h.documents.Upload(c.Request.Context(), conn, header.Filename, data)
	rec.storeGraph(conn)
	if err != nil {
		if errors.Is(err, service.ErrNoDocumentBackend) && result != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
			return
		}
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func writeServiceError(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": vErr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoDocumentBackend):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func questionToResponse(q domain.Question) QuestionResponse {
	resp := QuestionResponse{
		ID:                 q.ID,
		Question:           q.Text,
		IdealAnswer:        q.IdealAnswer,
		AgentName:          q.AgentName,
		Tags:               q.Tags,
		ReferenceDocuments: make([]ReferenceResponse, len(q.ReferenceDocuments)),
		CreatedOn:          q.CreatedOn.Format(domain.CreatedOnLayout),
		SubmittedBy:        q.SubmittedBy,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	for i, ref := range q.ReferenceDocuments {
		resp.ReferenceDocuments[i] = ReferenceResponse{Name: ref.Name, Pages: ref.Pages, Source: ref.Source}
	}
	return resp
}
