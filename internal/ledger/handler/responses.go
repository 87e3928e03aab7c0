package handler

import (
	"remit/internal/ledger/models"
	"remit/pkg/domain"
	audit "remit/pkg/platform/audit"
)

type ConfigResponse struct {
	Owner        domain.AccountID   `json:"owner"`
	FeeCollector domain.AccountID   `json:"fee_collector"`
	FeeRateBps   uint16             `json:"fee_rate_bps"`
	Paused       bool               `json:"paused"`
	Operators    []domain.AccountID `json:"operators"`
	Custody      domain.Amount      `json:"custody"`
	Escrowed     domain.Amount      `json:"escrowed"`
}

func toConfigResponse(cfg *models.Config, h models.Holdings) ConfigResponse {
	return ConfigResponse{
		Owner:        cfg.Owner,
		FeeCollector: cfg.FeeCollector,
		FeeRateBps:   cfg.FeeRateBps,
		Paused:       cfg.Paused,
		Operators:    cfg.OperatorList(),
		Custody:      h.Custody,
		Escrowed:     h.Escrowed,
	}
}

type FeeResponse struct {
	Amount     domain.Amount `json:"amount"`
	Fee        domain.Amount `json:"fee"`
	FeeRateBps uint16        `json:"fee_rate_bps"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type TxIDResponse struct {
	Index uint64      `json:"index"`
	ID    domain.TxID `json:"id"`
}

type WithdrawResponse struct {
	Amount domain.Amount `json:"amount"`
}

type BalanceResponse struct {
	Account domain.AccountID `json:"account"`
	Balance domain.Amount    `json:"balance"`
}

type EventsResponse struct {
	Events []audit.Event `json:"events"`
	Next   uint64        `json:"next"`
}

type BatchVerifyResponse struct {
	Verified int `json:"verified"`
}
