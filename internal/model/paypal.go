package model

// PayPal REST v2 wire types, reduced to what order creation and capture read back.

type Payer struct {
	PayerID string `json:"payer_id"`
	Email   string `json:"email_address"`
}

type PaypalLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type PaypalAmount struct {
	Currency string `json:"currency_code"`
	Value    string `json:"value"`
}

type PaypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Final  bool         `json:"final_capture"`
	Amount PaypalAmount `json:"amount"`
}

type PaypalPayments struct {
	Captures []PaypalCapture `json:"captures"`
}

type PaypalPurchaseUnit struct {
	ReferenceID string          `json:"reference_id"`
	Amount      *PaypalAmount   `json:"amount,omitempty"`
	Payments    *PaypalPayments `json:"payments,omitempty"`
}

// PaypalResult is the order resource returned by create and capture calls.
type PaypalResult struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Links         []PaypalLink         `json:"links"`
	Payer         Payer                `json:"payer"`
	PurchaseUnits []PaypalPurchaseUnit `json:"purchase_units"`
}

// ApproveURL returns the buyer approval link, empty when PayPal did not send one.
func (r *PaypalResult) ApproveURL() string {
	for _, link := range r.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

// CaptureStatus returns the status of the first capture, falling back to the order status.
func (r *PaypalResult) CaptureStatus() string {
	for _, pu := range r.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0].Status
		}
	}
	return r.Status
}
