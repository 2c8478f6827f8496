package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcelebi/qrtransfer/internal/handler/config"
	"github.com/mcelebi/qrtransfer/internal/logger"
	"github.com/mcelebi/qrtransfer/internal/model"
	"github.com/mcelebi/qrtransfer/internal/service"
)

func Serve(cfg config.Config, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	return srv.ListenAndServe()
}

type handler struct {
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/qrtransfer/info", logger.RequestLogMdlw(h.GetInfo, h.zaplog))
	mux.HandleFunc("POST /api/qrtransfer/process", logger.RequestLogMdlw(h.PostProcess, h.zaplog))
	mux.HandleFunc("POST /api/qrtransfer/callback", logger.RequestLogMdlw(h.PostCallback, h.zaplog))
	mux.HandleFunc("POST /api/qrtransfer/completed", logger.RequestLogMdlw(h.PostCompleted, h.zaplog))

	return mux
}

type GetInfoJSONResponse struct {
	DescriptionText         string  `json:"description_text"`
	AdditionalFee           float64 `json:"additional_fee"`
	AdditionalFeePercentage bool    `json:"additional_fee_percentage"`
	DisplayOrder            int     `json:"display_order"`
}

func (h *handler) GetInfo(w http.ResponseWriter, r *http.Request) {
	info := h.service.PaymentInfo()

	responseJSON, err := json.Marshal(GetInfoJSONResponse{
		DescriptionText:         info.DescriptionText,
		AdditionalFee:           info.AdditionalFee,
		AdditionalFeePercentage: info.AdditionalFeePercentage,
		DisplayOrder:            info.DisplayOrder,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}

type PostProcessJSONRequest struct {
	OrderGuid uuid.UUID `json:"order_guid"`
}

type PostProcessJSONResponse struct {
	OrderGuid   uuid.UUID       `json:"order_guid"`
	OrderCode   string          `json:"order_code"`
	Amount      decimal.Decimal `json:"amount"`
	QRData      string          `json:"qr_data"`
	Description string          `json:"description"`
}

func (h *handler) PostProcess(w http.ResponseWriter, r *http.Request) {
	var processJSON PostProcessJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&processJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	process, err := h.service.ProcessPayment(r.Context(), processJSON.OrderGuid)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrOrderNotPending),
			errors.Is(err, service.ErrPaymentNotPending),
			errors.Is(err, service.ErrTransactionNotFound):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	responseJSON, err := json.Marshal(PostProcessJSONResponse{
		OrderGuid:   process.OrderGuid,
		OrderCode:   process.OrderCode,
		Amount:      process.Amount,
		QRData:      process.QRData,
		Description: process.Description,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}

type PostCallbackJSONRequest struct {
	OrderGuid  uuid.UUID `json:"order_guid"`
	Action     string    `json:"action"`
	QRData     string    `json:"qr_data"`
	SenderName string    `json:"sender_name"`
}

func (h *handler) PostCallback(w http.ResponseWriter, r *http.Request) {
	var callbackJSON PostCallbackJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&callbackJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.service.PaymentCallback(r.Context(),
		callbackJSON.OrderGuid,
		callbackJSON.Action,
		callbackJSON.QRData,
		callbackJSON.SenderName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrOrderNotPending),
			errors.Is(err, service.ErrPaymentNotPending):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) PostCompleted(w http.ResponseWriter, r *http.Request) {
	var notice model.PaymentNotice
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.service.CompletePayment(r.Context(), notice)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoMatchingOrder),
			errors.Is(err, service.ErrOrderNotPending),
			errors.Is(err, service.ErrPaymentNotPending),
			errors.Is(err, service.ErrTransactionNotFound),
			errors.Is(err, service.ErrTransactionNotPending),
			errors.Is(err, service.ErrSenderUnknown),
			errors.Is(err, service.ErrSenderMismatch):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}
