package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSubjectNotFound matches a RegistryError for a subject with no registered versions.
var ErrSubjectNotFound = errors.New("schema subject not found")

// Registry error codes that mean the subject (or its latest version) does not exist yet.
const (
	codeSubjectNotFound = 40401
	codeVersionNotFound = 40402
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// ValueSubject names the value schema of a topic (the registry's TopicNameStrategy).
// The repository stamps this on every outbox row and the dispatcher registers it.
func ValueSubject(topic string) string {
	return topic + "-value"
}

// RegistryError is a non-2xx registry reply. Code is the registry's error_code when the
// body carried one.
type RegistryError struct {
	Status  int
	Code    int
	Message string
}

func (e *RegistryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("schema registry %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("schema registry %d: %s", e.Status, e.Message)
}

func (e *RegistryError) Is(target error) bool {
	if target != ErrSubjectNotFound {
		return false
	}
	return e.Code == codeSubjectNotFound || e.Code == codeVersionNotFound ||
		(e.Code == 0 && e.Status == http.StatusNotFound)
}

// SchemaRegistryClient registers the habit and profile change schemas and resolves their ids.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// SchemaRegistryOption configures a SchemaRegistryClient.
type SchemaRegistryOption func(*SchemaRegistryClient)

// WithHTTPClient replaces the default client, which times out after 10s.
func WithHTTPClient(client *http.Client) SchemaRegistryOption {
	return func(c *SchemaRegistryClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewSchemaRegistryClient(baseURL string, opts ...SchemaRegistryOption) *SchemaRegistryClient {
	c := &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureSchema returns the id of the subject's latest version, registering schema as
// the first version when the subject is unknown.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	path := "/subjects/" + url.PathEscape(subject) + "/versions"

	id, err := c.call(ctx, http.MethodGet, path+"/latest", nil)
	if !errors.Is(err, ErrSubjectNotFound) {
		return id, err
	}
	return c.call(ctx, http.MethodPost, path, map[string]string{
		"schemaType": "JSON",
		"schema":     schema,
	})
}

// call performs one registry request and decodes the schema id from the reply.
func (c *SchemaRegistryClient) call(ctx context.Context, method, path string, payload any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", registryContentType)
	if body != nil {
		req.Header.Set("Content-Type", registryContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, decodeRegistryError(resp)
	}

	var reply struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return 0, fmt.Errorf("decode schema registry reply: %w", err)
	}
	return reply.ID, nil
}

func decodeRegistryError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	regErr := &RegistryError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}

	var reply struct {
		ErrorCode int    `json:"error_code"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(data, &reply) == nil && reply.ErrorCode != 0 {
		regErr.Code = reply.ErrorCode
		regErr.Message = reply.Message
	}
	return regErr
}
