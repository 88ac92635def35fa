package server

import "github.com/smartdevs17/contract-gateway/internal/contract"

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	ContractAddress string `json:"contractAddress"`
	Network         string `json:"network"`
}

// BalanceView renders a balance in ether and exact wei
type BalanceView struct {
	Eth string `json:"eth"`
	Wei string `json:"wei"`
}

func newBalanceView(b contract.Balance) BalanceView {
	return BalanceView{Eth: b.Ether, Wei: b.WeiString()}
}

// NameResponse is returned by GET /api/getName
type NameResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

// BalanceResponse is returned by GET /api/getBalance
type BalanceResponse struct {
	Success bool        `json:"success"`
	Balance BalanceView `json:"balance"`
}

// ContractData groups the contract's readable state
type ContractData struct {
	Name    string      `json:"name"`
	Balance BalanceView `json:"balance"`
}

// ContractInfoResponse is returned by GET /api/contractInfo
type ContractInfoResponse struct {
	Success         bool         `json:"success"`
	ContractAddress string       `json:"contractAddress"`
	Network         string       `json:"network"`
	Data            ContractData `json:"data"`
}

// ContractAPITestResponse is returned by GET /contractApiTest
type ContractAPITestResponse struct {
	ContractInfoResponse
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the failure envelope of every data endpoint
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
