package service

// InitiatePaymentRequest carries what the payer-facing checkout needs.
// Controllers convert their HTTP DTOs to this type.
type InitiatePaymentRequest struct {
	SuccessURL string
	CancelURL  string
	LineItems  []LineItem
}

// LineItem is one purchased item. UnitAmount is in cents.
type LineItem struct {
	Currency    string
	ProductName string
	UnitAmount  int64
	Quantity    int64
}
