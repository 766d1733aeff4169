package safaricom

import (
	"encoding/json"
	"fmt"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type paymentRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occassion"`
	IDType                   string `json:"IDType,omitempty"`
	IDNumber                 string `json:"IDNumber,omitempty"`
}

type paymentResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`

	// Error document fields
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (r paymentResponse) isError() bool {
	return r.ErrorCode != ""
}

type callbackEnvelope struct {
	Result *callbackResult `json:"Result"`
}

type callbackResult struct {
	ResultType               int               `json:"ResultType"`
	ResultCode               flexibleCode      `json:"ResultCode"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         *resultParameters `json:"ResultParameters,omitempty"`
}

type resultParameters struct {
	ResultParameter []resultParameter `json:"ResultParameter"`
}

type resultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

// flexibleCode accepts a result code sent either as a number or as a string
type flexibleCode string

func (c *flexibleCode) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*c = flexibleCode(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("result code must be a number or a string: %w", err)
	}
	*c = flexibleCode(s)
	return nil
}
