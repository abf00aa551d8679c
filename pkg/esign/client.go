package esign

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

	"github.com/bouncebros/bouncebros-backend/pkg/config"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("esign base url is required")
	errAPIKeyRequired  = errors.New("esign api key is required")
	errSecretRequired  = errors.New("esign webhook secret is required")
	errLoggerRequired  = errors.New("esign logger is required")
)

// Submission is the provider's view of one agreement sent for signature.
type Submission struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	SigningURL string `json:"signing_url,omitempty"`
	ViewedAt   string `json:"viewed_at,omitempty"`
	SignedAt   string `json:"signed_at,omitempty"`
	DeclinedAt string `json:"declined_at,omitempty"`
}

// SubmissionCreateParams describes a new agreement submission.
type SubmissionCreateParams struct {
	TemplateID     string            `json:"template_id"`
	SignerEmail    string            `json:"signer_email"`
	SignerName     string            `json:"signer_name,omitempty"`
	ReferenceID    string            `json:"reference_id"`
	Fields         map[string]string `json:"fields,omitempty"`
	SendEmail      bool              `json:"send_email"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	IdempotencyKey string            `json:"-"`
}

// Provider is the subset of the e-sign API the order lifecycle needs.
type Provider interface {
	CreateSubmission(ctx context.Context, params SubmissionCreateParams) (*Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (*Submission, error)
	SigningSecret() string
}

// Client talks to the e-signature provider's REST API with centralized auth,
// logging, timeouts, and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
	templateID    string
	logger        *logger.Logger
}

// NewClient validates the configuration and builds the provider client.
func NewClient(ctx context.Context, cfg config.EsignConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing esign base url: %w", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		templateID:    strings.TrimSpace(cfg.TemplateID),
		logger:        logg,
	}

	logg.Info(ctx, "esign client initialized")
	return c, nil
}

func (c *Client) log(ctx context.Context, stage, op string, fields map[string]any) {
	merged := map[string]any{"stage": stage}
	for k, v := range fields {
		merged[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, merged), "esign."+op)
}

// SigningSecret returns the webhook HMAC secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// TemplateID returns the default agreement template.
func (c *Client) TemplateID() string {
	if c == nil {
		return ""
	}
	return c.templateID
}

// CreateSubmission sends a new agreement out for signature.
func (c *Client) CreateSubmission(ctx context.Context, params SubmissionCreateParams) (*Submission, error) {
	if params.TemplateID == "" {
		params.TemplateID = c.templateID
	}
	c.log(ctx, "request", "create_submission", map[string]any{
		"template_id":  params.TemplateID,
		"reference_id": params.ReferenceID,
		"signer_email": params.SignerEmail,
	})

	var submission Submission
	if err := c.do(ctx, http.MethodPost, "/v1/submissions", params, params.IdempotencyKey, &submission); err != nil {
		c.log(ctx, "error", "create_submission", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_submission", map[string]any{
		"submission_id": submission.ID,
		"status":        submission.Status,
	})
	return &submission, nil
}

// GetSubmission fetches the provider's current state for a submission.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	id := strings.TrimSpace(submissionID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "submission id is required")
	}
	c.log(ctx, "request", "get_submission", map[string]any{"submission_id": id})

	var submission Submission
	path := "/v1/submissions/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &submission); err != nil {
		c.log(ctx, "error", "get_submission", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_submission", map[string]any{
		"submission_id": submission.ID,
		"status":        submission.Status,
	})
	return &submission, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding esign request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building esign request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "esign provider unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading esign response")
	}

	if resp.StatusCode >= 400 {
		return c.mapProviderError(resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding esign response")
		}
	}
	return nil
}

func (c *Client) mapProviderError(status int, payload []byte) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &body)
	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = fmt.Sprintf("esign provider returned %d", status)
	}
	return pkgerrors.New(domainCodeForStatus(status), message)
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeDependency
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
