package rpc

import (
	"net/http"

	"stayer/native/vault"
)

type vaultAmountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type vaultLiquidateParams struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	DebtToCover string `json:"debtToCover"`
}

type vaultUserParams struct {
	User string `json:"user"`
}

type vaultSetParamsParams struct {
	Caller        string `json:"caller"`
	LTV           uint64 `json:"ltv"`
	LiqThreshold  uint64 `json:"liqThreshold"`
	LiqPenalty    uint64 `json:"liqPenalty"`
	StabilityFee  uint64 `json:"stabilityFeeBps"`
	MinCollateral string `json:"minCollateral"`
}

type vaultOracleParams struct {
	Caller string `json:"caller"`
	Oracle string `json:"oracle"`
}

type vaultCallerParams struct {
	Caller string `json:"caller"`
}

type vaultPositionResult struct {
	Owner      string `json:"owner"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
	EntryPrice string `json:"entryPrice"`
}

func positionResult(position *vault.Position) vaultPositionResult {
	return vaultPositionResult{
		Owner:      position.Owner,
		Collateral: position.Collateral.String(),
		Debt:       position.Debt.String(),
		EntryPrice: position.EntryPrice.String(),
	}
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultAmountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	position, err := s.node.Vault().Deposit(params.Caller, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleVaultBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultAmountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	position, err := s.node.Vault().Borrow(params.Caller, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleVaultRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultAmountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	position, err := s.node.Vault().Repay(params.Caller, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultAmountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	position, err := s.node.Vault().Withdraw(params.Caller, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleVaultLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultLiquidateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	cover, err := parseAmount(params.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	seized, err := s.node.Vault().Liquidate(params.Liquidator, params.User, cover)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"seized": seized.String()})
}

func (s *Server) handleVaultGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultUserParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	position, err := s.node.Vault().GetPosition(params.User)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult(position))
}

func (s *Server) handleVaultHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultUserParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	health, err := s.node.Vault().HealthFactor(params.User)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"healthFactor": health})
}

func (s *Server) handleVaultIsLiquidatable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultUserParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	liquidatable, err := s.node.Vault().IsLiquidatable(params.User)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"liquidatable": liquidatable})
}

func (s *Server) handleVaultStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.node.Vault().Stats()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stats)
}

func (s *Server) handleVaultParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, err := s.node.Vault().GetParams()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, params)
}

func (s *Server) handleVaultTotalDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.Vault().TotalDebt()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"totalDebt": total.String()})
}

func (s *Server) handleVaultSetParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultSetParamsParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	minCollateral, err := parseAmount(params.MinCollateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minimum collateral", err.Error())
		return
	}
	next := vault.Params{
		LTV:             params.LTV,
		LiqThreshold:    params.LiqThreshold,
		LiqPenalty:      params.LiqPenalty,
		StabilityFeeBps: params.StabilityFee,
		MinCollateral:   minCollateral,
	}
	if err := s.node.Vault().SetParams(params.Caller, next); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleVaultSetOracle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultOracleParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Vault().SetOracle(params.Caller, params.Oracle); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleVaultPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Vault().Pause(params.Caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": true})
}

func (s *Server) handleVaultUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vaultCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Vault().Unpause(params.Caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": false})
}
