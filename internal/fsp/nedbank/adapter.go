// Package nedbank integrates the Nedbank cash-out voucher API. Vouchers are created
// synchronously and confirmed later by polling the order status.
package nedbank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

const (
	phoneRegion      = "ZA"
	currency         = "ZAR"
	voucherLifetime  = 7 * 24 * time.Hour
	debtorScheme     = "account"
	creditorScheme   = "recipient"
	statementName    = "MyRefOnceOffQATrx"
	errCodeNotFound  = "NB.APIM.Resource.NotFound"
	msgNotMultipleOf = "Amount must be a multiple of 10"
)

var amountStep = decimal.NewFromInt(10)

// Adapter implements fsp.Adapter and fsp.StatusQuerier for Nedbank
type Adapter struct {
	client *client
	cfg    config.NedbankConfig
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ fsp.Adapter       = (*Adapter)(nil)
	_ fsp.StatusQuerier = (*Adapter)(nil)
)

// NewAdapter creates the Nedbank adapter. A nil httpClient uses http.DefaultClient.
func NewAdapter(cfg config.NedbankConfig, httpClient *http.Client, logger *slog.Logger) *Adapter {
	return &Adapter{
		client: newClient(cfg, httpClient, logger),
		cfg:    cfg,
		logger: logger.With("provider", shared.ProviderNedbank.String()),
		now:    time.Now,
	}
}

func (a *Adapter) Provider() shared.ProviderName {
	return shared.ProviderNedbank
}

// TerminalStatuses lists voucher statuses that need no further polling
func (a *Adapter) TerminalStatuses() []string {
	return []string{string(StatusRedeemed), string(StatusRefunded), string(StatusFailed)}
}

// Transfer creates one voucher order. Local validation failures never reach the API.
func (a *Adapter) Transfer(ctx context.Context, in fsp.TransferInput) (fsp.Outcome, error) {
	if err := validate(in); err != nil {
		a.logger.Info("Transfer rejected before calling Nedbank", "reference", in.Reference, "reason", err.Message)
		return fsp.Rejected(err, string(StatusFailed)), nil
	}

	payload := a.orderPayload(in)

	start := time.Now()
	resp, err := a.client.do(ctx, http.MethodPost, "/v1/orders", in.IdempotencyKey, payload)
	metrics.ObserveProviderCall(shared.ProviderNedbank.String(), "transfer", start)
	if err != nil {
		a.logger.Warn("Nedbank create order call failed", "reference", in.Reference, "error", err)
		message := errorMessage(nil)
		if fsp.IsTimeout(err) {
			message = "Nedbank did not answer in time"
		}
		return fsp.ClassifyTransportError(shared.ProviderNedbank, err, message), nil
	}

	if resp.Error != nil {
		return a.classifyErrorResponse(resp), nil
	}

	var created createOrderResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		// The order may exist; reconciliation resolves it by reference.
		return fsp.UnknownAfterTimeout(fsp.NewError(shared.ProviderNedbank, fsp.KindAmbiguous, "",
			fmt.Sprintf("unreadable create order response: %v", err))), nil
	}

	a.logger.Debug("Nedbank voucher created", "reference", in.Reference, "status", created.Data.Status)
	return fsp.Accepted(in.Reference, created.Data.Status), nil
}

// QueryStatus reads the voucher status of an order reference. An order Nedbank has
// never seen is reported as FAILED and not found.
func (a *Adapter) QueryStatus(ctx context.Context, reference string) (fsp.StatusReport, error) {
	start := time.Now()
	resp, err := a.client.do(ctx, http.MethodGet, "/v1/orders/references/"+reference, "", nil)
	metrics.ObserveProviderCall(shared.ProviderNedbank.String(), "query_status", start)
	if err != nil {
		return fsp.StatusReport{}, fsp.NewError(shared.ProviderNedbank, fsp.KindTransient, "", fmt.Sprintf("%s: %v", errorMessage(nil), err))
	}

	if resp.Error != nil {
		if resp.Error.Code == errCodeNotFound {
			return fsp.StatusReport{
				Reference:      reference,
				ProviderStatus: string(StatusFailed),
				Found:          false,
				Decision:       Decide(StatusFailed),
			}, nil
		}
		return fsp.StatusReport{}, fsp.NewError(shared.ProviderNedbank, kindForStatus(resp.StatusCode), resp.Error.Code, errorMessage(resp.Error))
	}

	var order getOrderResponse
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return fsp.StatusReport{}, fmt.Errorf("failed to decode nedbank order %s: %w", reference, err)
	}

	status := VoucherStatus(order.Data.Transactions.Voucher.Status)
	if !status.IsKnown() {
		a.logger.Warn("Nedbank returned an unknown voucher status", "reference", reference, "status", status)
	}
	return fsp.StatusReport{
		Reference:      reference,
		ProviderStatus: string(status),
		Found:          true,
		Decision:       Decide(status),
	}, nil
}

func (a *Adapter) classifyErrorResponse(resp *apiResponse) fsp.Outcome {
	kind := kindForStatus(resp.StatusCode)
	ferr := fsp.NewError(shared.ProviderNedbank, kind, resp.Error.Code, errorMessage(resp.Error))
	if kind == fsp.KindTransient {
		return fsp.Transient(ferr)
	}
	return fsp.Rejected(ferr, string(StatusFailed))
}

func kindForStatus(statusCode int) fsp.ErrorKind {
	if statusCode >= http.StatusInternalServerError {
		return fsp.KindTransient
	}
	return fsp.KindRejection
}

func (a *Adapter) orderPayload(in fsp.TransferInput) createOrderRequest {
	now := a.now().UTC()
	return createOrderRequest{
		Data: createOrderData{
			Initiation: orderInitiation{
				InstructionIdentification: strings.ReplaceAll(uuid.NewString(), "-", ""),
				InstructedAmount: instructedAmount{
					Amount:   in.Amount.StringFixed(2),
					Currency: currency,
				},
				DebtorAccount: accountIdentifier{
					SchemeName:     debtorScheme,
					Identification: a.cfg.DebtorAccount,
					Name:           statementName,
				},
				CreditorAccount: accountIdentifier{
					SchemeName:     creditorScheme,
					Identification: in.Destination,
					Name:           statementName,
				},
			},
			ExpirationDateTime: now.Add(voucherLifetime).Format(time.RFC3339),
		},
		Risk: orderRisk{
			OrderCreateReference: in.Reference,
			OrderDateTime:        now.Format(time.DateOnly),
		},
	}
}

func validate(in fsp.TransferInput) *fsp.Error {
	if !in.Amount.IsInteger() || !in.Amount.Mod(amountStep).IsZero() {
		return fsp.ValidationError(shared.ProviderNedbank, msgNotMultipleOf)
	}
	number, err := libphonenumber.Parse(in.Destination, phoneRegion)
	if err != nil || !libphonenumber.IsValidNumberForRegion(number, phoneRegion) {
		return fsp.ValidationError(shared.ProviderNedbank, "Phone number is not a valid South African number")
	}
	return nil
}
