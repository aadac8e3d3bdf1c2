package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/payflow/payments/internal/service"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// CreatePayment handles POST /v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	txn, err := req.toTransaction()
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err = h.paymentService.Register(r.Context(), txn)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromTransaction(txn))
}

// InitiatePayment handles POST /v1/payments/{txnReference}/initiate
func (h *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in, err := req.toService()
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err := h.paymentService.InitiatePayment(r.Context(), chi.URLParam(r, "txnReference"), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTransaction(txn))
}

// GetPayment handles GET /v1/payments/{txnReference}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	txn, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "txnReference"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTransaction(txn))
}

// GetEvents handles GET /v1/payments/{txnReference}/events
func (h *PaymentController) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.paymentService.GetEvents(r.Context(), chi.URLParam(r, "txnReference"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
