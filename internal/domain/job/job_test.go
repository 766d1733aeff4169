package job

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *Job {
	return New(BatchContext{
		ProgramID:     3,
		PaymentNumber: 2,
		Provider:      shared.ProviderNedbank,
		BulkSize:      1,
	}, TransferRequest{
		ReferenceID: "ref-1",
		Amount:      decimal.NewFromInt(200),
		Destination: "+27821234567",
	})
}

func TestJob_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(j *Job)
		expectedErr string
	}{
		{name: "Valid", mutate: func(j *Job) {}},
		{name: "MissingReference", mutate: func(j *Job) { j.ReferenceID = "" }, expectedErr: "ReferenceID: required"},
		{name: "ZeroProgram", mutate: func(j *Job) { j.ProgramID = 0 }, expectedErr: "ProgramID: required"},
		{name: "BadIdempotencyKey", mutate: func(j *Job) { j.IdempotencyKey = "abc" }, expectedErr: "IdempotencyKey: uuid"},
		{name: "ZeroAmount", mutate: func(j *Job) { j.Amount = decimal.Zero }, expectedErr: ErrInvalidAmount.Error()},
		{name: "NegativeAmount", mutate: func(j *Job) { j.Amount = decimal.NewFromInt(-5) }, expectedErr: ErrInvalidAmount.Error()},
		{name: "NegativeResends", mutate: func(j *Job) { j.Resends = -1 }, expectedErr: "Resends: gte"},
		{name: "MissingProvider", mutate: func(j *Job) { j.Provider = "" }, expectedErr: "Provider: required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			j := newTestJob()
			tc.mutate(j)

			err := j.Validate()
			if tc.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidJob))
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestJob_ResendKeepsIdempotencyKey(t *testing.T) {
	original := newTestJob()
	original.ProviderParams = map[string]string{"id_number": "123"}

	resend := original.Resend()

	assert.Equal(t, original.IdempotencyKey, resend.IdempotencyKey)
	assert.Equal(t, 1, resend.Resends)
	assert.Equal(t, 0, original.Resends)
	assert.Equal(t, 2, resend.Resend().Resends)
	assert.True(t, original.Amount.Equal(resend.Amount))

	resend.ProviderParams["id_number"] = "456"
	assert.Equal(t, "123", original.ProviderParams["id_number"])
}

func TestJob_JSONRoundTripKeepsAmountExact(t *testing.T) {
	original := newTestJob()
	original.Amount = decimal.RequireFromString("150.50")

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.True(t, original.Amount.Equal(decoded.Amount))
	assert.Equal(t, original.IdempotencyKey, decoded.IdempotencyKey)
	assert.Equal(t, shared.ProgramScope(3), decoded.Scope())
}

func TestTransferRequest_Validate(t *testing.T) {
	valid := TransferRequest{ReferenceID: "r", Amount: decimal.NewFromInt(10), Destination: "0712345678"}
	assert.NoError(t, valid.Validate())

	missing := TransferRequest{Amount: decimal.NewFromInt(10)}
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReferenceID: required")
	assert.Contains(t, err.Error(), "Destination: required")

	zero := TransferRequest{ReferenceID: "r", Destination: "d"}
	assert.ErrorIs(t, zero.Validate(), ErrInvalidAmount)
}

func TestJob_PairKey(t *testing.T) {
	j := newTestJob()
	assert.Equal(t, "3:ref-1:2", j.PairKey())
	assert.Equal(t, j.PairKey(), j.Resend().PairKey())
}
