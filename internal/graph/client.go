package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"lmsadmin/internal/domain"
)

const (
	defaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultLoginURL = "https://login.microsoftonline.com"
	defaultTimeout  = 30 * time.Second

	// Токен считается протухшим заранее, чтобы не ловить 401 на границе
	tokenExpirySkew = 2 * time.Minute
)

// TokenStore персистит обновленный access token на записи интеграции
type TokenStore interface {
	SaveToken(ctx context.Context, integrationID int64, token string, expiresAt time.Time) error
}

type Options struct {
	BaseURL    string
	LoginURL   string
	HTTPClient *http.Client
	TokenStore TokenStore
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client - тонкая обертка над Microsoft Graph REST API.
// Ошибки нормализуются в APIError, протухший токен обновляется прозрачно:
// после 401 токен запрашивается заново и вызов повторяется ровно один раз.
type Client struct {
	baseURL    string
	loginURL   string
	httpClient *http.Client
	tokenStore TokenStore
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu      sync.Mutex
	siteIDs map[int64]string
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	loginURL := strings.TrimRight(strings.TrimSpace(opts.LoginURL), "/")
	if loginURL == "" {
		loginURL = defaultLoginURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		loginURL:   loginURL,
		httpClient: httpClient,
		tokenStore: opts.TokenStore,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		siteIDs:    make(map[int64]string),
	}
}

// ListItem - элемент списка SharePoint с развернутыми полями
type ListItem struct {
	ID           string         `json:"id"`
	LastModified string         `json:"lastModifiedDateTime"`
	Fields       map[string]any `json:"fields"`
}

// MeetingRecordingInfo - метаданные записи конференции Teams
type MeetingRecordingInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ContentURL string `json:"recordingContentUrl"`
	CreatedAt  string `json:"createdDateTime"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// acquireToken получает токен по client-credentials flow и сохраняет его
// на записи интеграции
func (c *Client) acquireToken(ctx context.Context, integ *domain.SyncIntegration) (string, error) {
	form := url.Values{}
	form.Set("client_id", integ.ClientID)
	form.Set("client_secret", integ.ClientSecret)
	form.Set("scope", "https://graph.microsoft.com/.default")
	form.Set("grant_type", "client_credentials")

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.loginURL, url.PathEscape(integ.TenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Kind:       KindUnauthorized,
			Code:       tr.Error,
			Message:    tr.Description,
		}
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	integ.AccessToken = tr.AccessToken
	integ.TokenExpiresAt = &expiresAt

	if c.tokenStore != nil {
		if err := c.tokenStore.SaveToken(ctx, integ.ID, tr.AccessToken, expiresAt); err != nil {
			// Токен рабочий, потеря кеша не фатальна
			log.Printf("[Graph] warning: failed to persist token for integration %d: %v", integ.ID, err)
		}
	}

	return tr.AccessToken, nil
}

func (c *Client) ensureToken(ctx context.Context, integ *domain.SyncIntegration, force bool) (string, error) {
	if !force && integ.AccessToken != "" && integ.TokenExpiresAt != nil &&
		time.Until(*integ.TokenExpiresAt) > tokenExpirySkew {
		return integ.AccessToken, nil
	}
	return c.acquireToken(ctx, integ)
}

// do выполняет запрос к Graph: один повтор после обновления токена на 401,
// ограниченный backoff на 429/5xx с учетом Retry-After
func (c *Client) do(ctx context.Context, integ *domain.SyncIntegration, method, reqURL string, body []byte, contentType string) ([]byte, error) {
	refreshed := false

	for attempt := 0; ; attempt++ {
		token, err := c.ensureToken(ctx, integ, false)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			if contentType == "" {
				contentType = "application/json"
			}
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, &APIError{Kind: KindNetwork, Message: err.Error()}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}

		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			// Пробуем обновить токен ровно один раз
			refreshed = true
			if _, err := c.acquireToken(ctx, integ); err != nil {
				return nil, err
			}
			continue
		}

		apiErr := classifyStatus(resp.StatusCode, respBody)
		if apiErr.Retryable() && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, apiErr
	}
}

// resolveSiteID находит id сайта SharePoint по его URL и кеширует его
// на время жизни процесса
func (c *Client) resolveSiteID(ctx context.Context, integ *domain.SyncIntegration) (string, error) {
	c.mu.Lock()
	if id, ok := c.siteIDs[integ.ID]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	parsed, err := url.Parse(integ.SiteURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid site url %q", integ.SiteURL)
	}
	sitePath := strings.TrimRight(parsed.Path, "/")

	reqURL := fmt.Sprintf("%s/sites/%s:%s?$select=id", c.baseURL, parsed.Host, sitePath)
	body, err := c.do(ctx, integ, http.MethodGet, reqURL, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to resolve site %s: %w", integ.SiteURL, err)
	}

	var site struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &site); err != nil {
		return "", fmt.Errorf("failed to decode site response: %w", err)
	}
	if site.ID == "" {
		return "", fmt.Errorf("site id is empty for %s", integ.SiteURL)
	}

	c.mu.Lock()
	c.siteIDs[integ.ID] = site.ID
	c.mu.Unlock()

	return site.ID, nil
}

// GetListItems возвращает все элементы списка, проходя по страницам
// через @odata.nextLink
func (c *Client) GetListItems(ctx context.Context, integ *domain.SyncIntegration, listName string) ([]ListItem, error) {
	siteID, err := c.resolveSiteID(ctx, integ)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/sites/%s/lists/%s/items?expand=fields&$top=200",
		c.baseURL, url.PathEscape(siteID), url.PathEscape(listName))

	var items []ListItem
	for reqURL != "" {
		body, err := c.do(ctx, integ, http.MethodGet, reqURL, nil, "")
		if err != nil {
			return nil, err
		}

		var page struct {
			Value    []ListItem `json:"value"`
			NextLink string     `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode list items: %w", err)
		}

		items = append(items, page.Value...)
		reqURL = page.NextLink
	}

	return items, nil
}

// CreateListItem создает элемент списка и возвращает его id
func (c *Client) CreateListItem(ctx context.Context, integ *domain.SyncIntegration, listName string, fields map[string]any) (string, error) {
	siteID, err := c.resolveSiteID(ctx, integ)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/sites/%s/lists/%s/items",
		c.baseURL, url.PathEscape(siteID), url.PathEscape(listName))
	body, err := c.do(ctx, integ, http.MethodPost, reqURL, payload, "")
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to decode created item: %w", err)
	}
	return created.ID, nil
}

// UpdateListItem обновляет поля элемента списка
func (c *Client) UpdateListItem(ctx context.Context, integ *domain.SyncIntegration, listName, itemID string, fields map[string]any) error {
	siteID, err := c.resolveSiteID(ctx, integ)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/sites/%s/lists/%s/items/%s/fields",
		c.baseURL, url.PathEscape(siteID), url.PathEscape(listName), url.PathEscape(itemID))
	_, err = c.do(ctx, integ, http.MethodPatch, reqURL, payload, "")
	return err
}

// UploadFile загружает файл в библиотеку документов сайта
func (c *Client) UploadFile(ctx context.Context, integ *domain.SyncIntegration, folder, name string, data []byte) error {
	siteID, err := c.resolveSiteID(ctx, integ)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/sites/%s/drive/root:/%s/%s:/content",
		c.baseURL, url.PathEscape(siteID), url.PathEscape(folder), url.PathEscape(name))
	_, err = c.do(ctx, integ, http.MethodPut, reqURL, data, "application/octet-stream")
	return err
}

// ListMeetingRecordings возвращает записи конференции Teams
func (c *Client) ListMeetingRecordings(ctx context.Context, integ *domain.SyncIntegration, organizerID, meetingID string) ([]MeetingRecordingInfo, error) {
	reqURL := fmt.Sprintf("%s/users/%s/onlineMeetings/%s/recordings",
		c.baseURL, url.PathEscape(organizerID), url.PathEscape(meetingID))

	body, err := c.do(ctx, integ, http.MethodGet, reqURL, nil, "")
	if err != nil {
		return nil, err
	}

	var page struct {
		Value []MeetingRecordingInfo `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode recordings: %w", err)
	}
	return page.Value, nil
}

// DownloadRecording скачивает содержимое записи по её content URL
func (c *Client) DownloadRecording(ctx context.Context, integ *domain.SyncIntegration, contentURL string) ([]byte, string, error) {
	token, err := c.ensureToken(ctx, integ, false)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", classifyStatus(resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// TestConnection выполняет самый дешевый аутентифицированный вызов -
// получение токена - и возвращает человекочитаемую причину отказа
func (c *Client) TestConnection(ctx context.Context, integ *domain.SyncIntegration) (bool, string) {
	if integ.TenantID == "" || integ.ClientID == "" || integ.ClientSecret == "" {
		return false, "integration credentials are not configured"
	}

	_, err := c.acquireToken(ctx, integ)
	if err == nil {
		return true, "connection successful"
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Kind == KindNetwork:
			return false, fmt.Sprintf("network failure: %s", apiErr.Message)
		case strings.Contains(apiErr.Code, "invalid_client") || strings.Contains(apiErr.Message, "AADSTS7000215"):
			return false, "invalid client credentials: check the client secret"
		case strings.Contains(apiErr.Message, "AADSTS90002") || strings.Contains(apiErr.Code, "invalid_tenant"):
			return false, fmt.Sprintf("tenant %q not found: check the tenant id", integ.TenantID)
		default:
			return false, apiErr.Error()
		}
	}

	return false, err.Error()
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
