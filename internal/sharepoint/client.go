package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope     = "https://graph.microsoft.com/.default"
)

var (
	// ErrNoDocumentLibrary is returned when the site has no drive named like a document library.
	ErrNoDocumentLibrary = errors.New("no document library found")
	// ErrNotConnected is returned when a call is made without a usable connection.
	ErrNotConnected = errors.New("sharepoint connection is not established")
)

// APIError is a non-2xx answer from Microsoft Graph.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// SiteHost and SitePath address the site, e.g. "contoso.sharepoint.com" and "/sites/Bench".
	SiteHost string
	SitePath string
	// BaseURL and TokenURL default to the public Graph and identity platform endpoints.
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
}

// Connection is the downstream credential kept next to a user session.
type Connection struct {
	AccessToken string
	Expiry      time.Time
	SiteID      string
	DriveID     string
}

// Valid reports whether the connection can be used at now.
func (c *Connection) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" || c.DriveID == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Before(c.Expiry)
}

// File is a document library entry.
type File struct {
	Name         string
	LastModified time.Time
	CreatedBy    string
}

type Client struct {
	credentials *clientcredentials.Config
	baseURL     string
	siteHost    string
	sitePath    string
	httpClient  *http.Client
	logger      logrus.FieldLogger
}

func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	}

	return &Client{
		credentials: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		baseURL:    baseURL,
		siteHost:   cfg.SiteHost,
		sitePath:   "/" + strings.Trim(cfg.SitePath, "/"),
		httpClient: httpClient,
		logger:     logger.WithField("component", "sharepoint"),
	}
}

// Connect obtains an application token and resolves the site and its document library.
func (c *Client) Connect(ctx context.Context) (*Connection, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	conn := &Connection{AccessToken: token.AccessToken, Expiry: token.Expiry}

	var site struct {
		ID string `json:"id"`
	}
	sitePath := fmt.Sprintf("/sites/%s:%s", c.siteHost, c.sitePath)
	if err := c.getJSON(ctx, conn, c.baseURL+sitePath, &site); err != nil {
		return nil, fmt.Errorf("resolve site: %w", err)
	}
	if site.ID == "" {
		return nil, fmt.Errorf("resolve site: empty site id")
	}
	conn.SiteID = site.ID

	driveID, err := c.documentDrive(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.DriveID = driveID

	c.logger.WithField("site_id", conn.SiteID).Info("connected to sharepoint")
	return conn, nil
}

// Refresh renews an expired token in place, keeping the resolved site and drive.
func (c *Client) Refresh(ctx context.Context, conn *Connection, now time.Time) error {
	if conn == nil || conn.DriveID == "" {
		return ErrNotConnected
	}
	if conn.Valid(now) {
		return nil
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	conn.AccessToken = token.AccessToken
	conn.Expiry = token.Expiry
	return nil
}

// ListFiles returns the files at the root of the document library; folders are skipped.
func (c *Client) ListFiles(ctx context.Context, conn *Connection) ([]File, error) {
	if conn == nil || conn.DriveID == "" {
		return nil, ErrNotConnected
	}

	type driveItem struct {
		Name                 string          `json:"name"`
		LastModifiedDateTime time.Time       `json:"lastModifiedDateTime"`
		Folder               json.RawMessage `json:"folder"`
		CreatedBy            struct {
			User struct {
				DisplayName string `json:"displayName"`
			} `json:"user"`
		} `json:"createdBy"`
	}
	var page struct {
		Value    []driveItem `json:"value"`
		NextLink string      `json:"@odata.nextLink"`
	}

	var files []File
	next := fmt.Sprintf("%s/drives/%s/root/children", c.baseURL, url.PathEscape(conn.DriveID))
	for next != "" {
		page.Value, page.NextLink = nil, ""
		if err := c.getJSON(ctx, conn, next, &page); err != nil {
			return nil, fmt.Errorf("list drive items: %w", err)
		}
		for _, item := range page.Value {
			if len(item.Folder) > 0 {
				continue
			}
			files = append(files, File{
				Name:         item.Name,
				LastModified: item.LastModifiedDateTime,
				CreatedBy:    item.CreatedBy.User.DisplayName,
			})
		}
		next = page.NextLink
	}
	return files, nil
}

// Upload stores body at the root of the document library, replacing any file
// with the same name.
func (c *Client) Upload(ctx context.Context, conn *Connection, name string, body io.Reader) error {
	if conn == nil || conn.DriveID == "" {
		return ErrNotConnected
	}
	endpoint := fmt.Sprintf("%s/drives/%s/root:/%s:/content", c.baseURL, url.PathEscape(conn.DriveID), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req, conn)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire graph token: %w", err)
	}
	return token, nil
}

func (c *Client) documentDrive(ctx context.Context, conn *Connection) (string, error) {
	var drives struct {
		Value []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/sites/%s/drives", c.baseURL, url.PathEscape(conn.SiteID))
	if err := c.getJSON(ctx, conn, endpoint, &drives); err != nil {
		return "", fmt.Errorf("list drives: %w", err)
	}
	for _, drive := range drives.Value {
		if strings.Contains(strings.ToLower(drive.Name), "document") {
			return drive.ID, nil
		}
	}
	return "", ErrNoDocumentLibrary
}

func (c *Client) getJSON(ctx context.Context, conn *Connection, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, conn)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, conn *Connection) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
