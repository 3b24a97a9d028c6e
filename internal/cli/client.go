package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TemplateResponse — шаблон процесса из API.
type TemplateResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IsActive  bool     `json:"is_active"`
	UpdatedAt string   `json:"updated_at"`
	XML       string   `json:"xml,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ReloadResponse — итог перезагрузки Schema Cache.
type ReloadResponse struct {
	Loaded     int   `json:"loaded"`
	Failed     int   `json:"failed"`
	Warnings   int   `json:"warnings"`
	DurationMs int64 `json:"duration_ms"`
}

// WorkflowResponse — экземпляр процесса из API.
type WorkflowResponse struct {
	ID                  string           `json:"id"`
	TemplateID          string           `json:"workflowTemplateId"`
	UserID              string           `json:"userId,omitempty"`
	IsFinal             bool             `json:"isFinal"`
	HasUnresolvedErrors bool             `json:"hasUnresolvedErrors"`
	Payload             map[string]any   `json:"payload,omitempty"`
	History             []map[string]any `json:"history,omitempty"`
	Nodes               []NodeResponse   `json:"nodes,omitempty"`
	Errors              []ErrorEntry     `json:"errors,omitempty"`
	CreatedAt           string           `json:"created_at"`
}

// NodeResponse — запись узла из API.
type NodeResponse struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	TemplateNodeID  string         `json:"templateNodeId"`
	Status          string         `json:"status"`
	ResultSequences []string       `json:"resultSequences,omitempty"`
	Outputs         map[string]any `json:"outputs,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// ErrorEntry — запись журнала ошибок из API.
type ErrorEntry struct {
	ID        string `json:"id"`
	Error     string `json:"error"`
	CreatedAt string `json:"created_at"`
}

// --- Request types ---

// CreateTemplateRequest — создание шаблона.
type CreateTemplateRequest struct {
	Name     string `json:"name"`
	XML      string `json:"xml"`
	IsActive bool   `json:"is_active"`
}

// StartWorkflowRequest — запуск процесса.
type StartWorkflowRequest struct {
	WorkflowTemplateID string         `json:"workflowTemplateId"`
	UserID             string         `json:"userId,omitempty"`
	Payload            map[string]any `json:"payload,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Client ---

// Client — HTTP-клиент для Processa API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Templates ---

// ListTemplates возвращает все шаблоны.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", nil, &templates)
	return templates, err
}

// CreateTemplate сохраняет BPMN-шаблон.
func (c *Client) CreateTemplate(req CreateTemplateRequest) (*TemplateResponse, error) {
	var tmpl TemplateResponse
	err := c.post("/api/v1/templates", req, &tmpl)
	return &tmpl, err
}

// GetTemplate возвращает шаблон по ID.
func (c *Client) GetTemplate(id string) (*TemplateResponse, error) {
	var tmpl TemplateResponse
	err := c.get("/api/v1/templates/"+url.PathEscape(id), &tmpl)
	return &tmpl, err
}

// SetTemplateActive включает или выключает шаблон.
func (c *Client) SetTemplateActive(id string, active bool) (*TemplateResponse, error) {
	var tmpl TemplateResponse
	body := map[string]bool{"is_active": active}
	err := c.put("/api/v1/templates/"+url.PathEscape(id)+"/active", body, &tmpl)
	return &tmpl, err
}

// ReloadTemplates перезагружает Schema Cache на manager.
func (c *Client) ReloadTemplates() (*ReloadResponse, error) {
	var stats ReloadResponse
	err := c.post("/api/v1/templates/reload", nil, &stats)
	return &stats, err
}

// --- Workflows ---

// StartWorkflow запускает процесс.
func (c *Client) StartWorkflow(req StartWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает экземпляр процесса по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// --- Service ---

// Health возвращает nil, если /healthz ответил 200.
func (c *Client) Health() error {
	resp, err := c.do(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	if er.Code == "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("%s: %s", er.Code, er.Error)
}
