// Package safaricom integrates the Safaricom M-Pesa B2C API. Transfers are accepted
// synchronously and settled by a result or timeout callback.
package safaricom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/ttacon/libphonenumber"
)

const (
	phoneRegion        = "KE"
	commandID          = "BusinessPayment"
	idTypeNationalID   = "01"
	paramIDNumber      = "id_number"
	errCodeDuplicate   = "500.002.1001"
	responseCodeOK     = "0"
	statusAccepted     = "accepted"
	paymentRequestPath = "/mpesa/b2c/v3/paymentrequest"
)

// Adapter implements fsp.Adapter and fsp.CallbackParser for Safaricom
type Adapter struct {
	cfg        config.SafaricomConfig
	httpClient *http.Client
	tokens     *tokenSource
	logger     *slog.Logger
}

var (
	_ fsp.Adapter        = (*Adapter)(nil)
	_ fsp.CallbackParser = (*Adapter)(nil)
)

// NewAdapter creates the Safaricom adapter. A nil httpClient uses http.DefaultClient.
func NewAdapter(cfg config.SafaricomConfig, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     newTokenSource(cfg, httpClient),
		logger:     logger.With("provider", shared.ProviderSafaricom.String()),
	}
}

func (a *Adapter) Provider() shared.ProviderName {
	return shared.ProviderSafaricom
}

// Transfer sends one B2C payment request. The order reference is sent as the
// OriginatorConversationID, which Safaricom uses to detect duplicates.
func (a *Adapter) Transfer(ctx context.Context, in fsp.TransferInput) (fsp.Outcome, error) {
	partyB, verr := validate(in)
	if verr != nil {
		a.logger.Info("Transfer rejected before calling Safaricom", "reference", in.Reference, "reason", verr.Message)
		return fsp.Rejected(verr, ""), nil
	}

	token, err := a.tokens.Token(ctx)
	if err != nil {
		// No payment request was sent yet
		a.logger.Warn("Failed to obtain Safaricom access token", "error", err)
		return fsp.Transient(fsp.NewError(shared.ProviderSafaricom, fsp.KindTransient, "", "Safaricom authentication failed: "+err.Error())), nil
	}

	payload := paymentRequest{
		OriginatorConversationID: in.Reference,
		InitiatorName:            a.cfg.InitiatorName,
		SecurityCredential:       a.cfg.SecurityCredential,
		CommandID:                commandID,
		Amount:                   in.Amount.StringFixed(0),
		PartyA:                   a.cfg.PartyA,
		PartyB:                   partyB,
		Remarks:                  "Payment " + in.Reference,
		QueueTimeOutURL:          a.cfg.TimeoutURL,
		ResultURL:                a.cfg.ResultURL,
		Occasion:                 in.Reference,
	}
	if id := in.Params[paramIDNumber]; id != "" {
		payload.IDType = idTypeNationalID
		payload.IDNumber = id
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fsp.Outcome{}, fmt.Errorf("failed to marshal safaricom payment request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(paymentRequestPath), bytes.NewReader(raw))
	if err != nil {
		return fsp.Outcome{}, fmt.Errorf("failed to build safaricom payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	metrics.ObserveProviderCall(shared.ProviderSafaricom.String(), "transfer", start)
	if err != nil {
		a.logger.Warn("Safaricom payment request failed", "reference", in.Reference, "error", err)
		message := "Safaricom could not be reached"
		if fsp.IsTimeout(err) {
			message = "Safaricom did not answer in time"
		}
		return fsp.ClassifyTransportError(shared.ProviderSafaricom, err, message), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fsp.UnknownAfterTimeout(fsp.NewError(shared.ProviderSafaricom, fsp.KindAmbiguous, "", "unreadable payment response: "+err.Error())), nil
	}

	var result paymentResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil && resp.StatusCode < http.StatusBadRequest {
			return fsp.UnknownAfterTimeout(fsp.NewError(shared.ProviderSafaricom, fsp.KindAmbiguous, "", "unreadable payment response: "+err.Error())), nil
		}
	}

	return a.classifyResponse(in, resp.StatusCode, result), nil
}

func (a *Adapter) classifyResponse(in fsp.TransferInput, statusCode int, result paymentResponse) fsp.Outcome {
	if result.isError() {
		if result.ErrorCode == errCodeDuplicate {
			a.logger.Info("Safaricom already holds this transfer", "reference", in.Reference)
			return fsp.Accepted(in.Reference, statusAccepted)
		}
		ferr := fsp.NewError(shared.ProviderSafaricom, kindForStatus(statusCode), result.ErrorCode, result.ErrorMessage)
		if ferr.Kind == fsp.KindTransient {
			return fsp.Transient(ferr)
		}
		return fsp.Rejected(ferr, "")
	}

	if statusCode >= http.StatusBadRequest {
		ferr := fsp.NewError(shared.ProviderSafaricom, kindForStatus(statusCode), "", http.StatusText(statusCode))
		if ferr.Kind == fsp.KindTransient {
			return fsp.Transient(ferr)
		}
		return fsp.Rejected(ferr, "")
	}

	if result.ResponseCode != responseCodeOK {
		return fsp.Rejected(fsp.NewError(shared.ProviderSafaricom, fsp.KindRejection, result.ResponseCode, result.ResponseDescription), "")
	}

	outcome := fsp.Accepted(in.Reference, statusAccepted)
	if result.ConversationID != "" {
		outcome.Details = map[string]string{"mpesa_conversation_id": result.ConversationID}
	}
	return outcome
}

func kindForStatus(statusCode int) fsp.ErrorKind {
	if statusCode >= http.StatusInternalServerError {
		return fsp.KindTransient
	}
	return fsp.KindRejection
}

func (a *Adapter) url(path string) string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + path
}

// validate checks the amount and returns the destination in international format without "+"
func validate(in fsp.TransferInput) (string, *fsp.Error) {
	if !in.Amount.IsInteger() || !in.Amount.IsPositive() {
		return "", fsp.ValidationError(shared.ProviderSafaricom, "Amount must be a whole number of shillings")
	}
	number, err := libphonenumber.Parse(in.Destination, phoneRegion)
	if err != nil || !libphonenumber.IsValidNumberForRegion(number, phoneRegion) {
		return "", fsp.ValidationError(shared.ProviderSafaricom, "Phone number is not a valid Kenyan number")
	}
	return strings.TrimPrefix(libphonenumber.Format(number, libphonenumber.E164), "+"), nil
}
