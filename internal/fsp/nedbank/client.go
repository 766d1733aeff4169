package nedbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/fsp-disbursement/internal/config"
	"github.com/google/uuid"
)

const (
	financialID       = "OB/2017/001"
	customerIPAddress = "0.0.0.0"
	maxErrorBodyBytes = 64 << 10
)

// apiResponse is one decoded exchange with the voucher API
type apiResponse struct {
	StatusCode int
	Body       []byte
	Error      *errorResponse // set when the body is an error document, whatever the status
}

// client wraps the voucher API transport and its fixed header set
type client struct {
	cfg        config.NedbankConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func newClient(cfg config.NedbankConfig, httpClient *http.Client, logger *slog.Logger) *client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// do sends one request. A non-nil error means no response was received.
func (c *client) do(ctx context.Context, method, path, idempotencyKey string, payload any) (*apiResponse, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal nedbank request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build nedbank request: %w", err)
	}
	c.setHeaders(req, idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read nedbank response: %w", err)
	}

	result := &apiResponse{StatusCode: resp.StatusCode, Body: raw}
	var errBody errorResponse
	if len(raw) > 0 && json.Unmarshal(raw, &errBody) == nil && (errBody.Errors != nil || resp.StatusCode >= http.StatusBadRequest) {
		result.Error = &errBody
	}
	if result.Error == nil && resp.StatusCode >= http.StatusBadRequest {
		result.Error = &errorResponse{Message: http.StatusText(resp.StatusCode)}
	}
	return result, nil
}

func (c *client) setHeaders(req *http.Request, idempotencyKey string) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	signature := c.cfg.JWSSignature
	if signature == "" {
		signature = strconv.Itoa(rand.Intn(10000))
	}

	req.Header.Set("x-ibm-client-id", c.cfg.ClientID)
	req.Header.Set("x-ibm-client-secret", c.cfg.ClientSecret)
	req.Header.Set("x-idempotency-key", idempotencyKey)
	req.Header.Set("x-jws-signature", signature)
	req.Header.Set("x-fapi-financial-id", financialID)
	req.Header.Set("x-fapi-customer-ip-address", customerIPAddress)
	req.Header.Set("x-fapi-interaction-id", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")
}

// errorMessage renders an error document as "Errors: a; b (Message: m, Code: c, Id: i)"
func errorMessage(body *errorResponse) string {
	if body == nil {
		return "Nedbank URL could not be reached"
	}

	var message string
	var details []string
	for _, e := range body.Errors {
		if e.Message != "" {
			details = append(details, e.Message)
		}
	}
	if len(details) > 0 {
		message = "Errors: " + strings.Join(details, "; ")
	}

	var info []string
	if body.Message != "" {
		info = append(info, "Message: "+body.Message)
	}
	if body.Code != "" {
		info = append(info, "Code: "+body.Code)
	}
	if body.ID != "" {
		info = append(info, "Id: "+body.ID)
	}
	if len(info) > 0 {
		message += " (" + strings.Join(info, ", ") + ")"
	}

	if message == "" {
		return "Unknown error"
	}
	return strings.TrimSpace(message)
}
