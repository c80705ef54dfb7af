package models

// PaymentCreateRequest is the input for opening a gateway transaction.
type PaymentCreateRequest struct {
	Amount      int64  `json:"amount"`
	InvoiceID   string `json:"invoice_id"`
	Phone       string `json:"mobile"`
	CallbackURL string `json:"callback_url"`
	Description string `json:"description"`
}

// PaymentVerifyResult is the parsed outcome of a verify call. Captured
// is true only when the gateway confirms the charge. A definitive
// decline comes back with Captured false and no error; transport or
// parse failures are returned as errors instead, and the caller must
// treat the charge as unresolved.
type PaymentVerifyResult struct {
	Captured bool   `json:"captured"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}
