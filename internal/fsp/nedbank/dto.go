package nedbank

type createOrderRequest struct {
	Data createOrderData `json:"Data"`
	Risk orderRisk       `json:"Risk"`
}

type createOrderData struct {
	Initiation         orderInitiation `json:"Initiation"`
	ExpirationDateTime string          `json:"ExpirationDateTime"`
}

type orderInitiation struct {
	InstructionIdentification string            `json:"InstructionIdentification"`
	InstructedAmount          instructedAmount  `json:"InstructedAmount"`
	DebtorAccount             accountIdentifier `json:"DebtorAccount"`
	CreditorAccount           accountIdentifier `json:"CreditorAccount"`
}

type instructedAmount struct {
	Amount   string `json:"Amount"`
	Currency string `json:"Currency"`
}

type accountIdentifier struct {
	SchemeName     string `json:"SchemeName"`
	Identification string `json:"Identification"`
	Name           string `json:"Name"`
}

type orderRisk struct {
	OrderCreateReference string `json:"OrderCreateReference"`
	OrderDateTime        string `json:"OrderDateTime"`
}

type createOrderResponse struct {
	Data struct {
		OrderID string `json:"OrderId"`
		Status  string `json:"Status"`
	} `json:"Data"`
}

type getOrderResponse struct {
	Data struct {
		Transactions struct {
			Voucher struct {
				Status string `json:"Status"`
			} `json:"Voucher"`
		} `json:"Transactions"`
	} `json:"Data"`
}

// errorResponse is returned by the API gateway, sometimes with a 2xx status
type errorResponse struct {
	Message string        `json:"Message"`
	Code    string        `json:"Code"`
	ID      string        `json:"Id"`
	Errors  []errorDetail `json:"Errors"`
}

type errorDetail struct {
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
}
