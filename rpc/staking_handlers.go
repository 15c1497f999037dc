package rpc

import (
	"net/http"
)

type stakingStakeParams struct {
	Caller    string `json:"caller"`
	Validator string `json:"validator"`
	Era       uint64 `json:"era"`
	Amount    string `json:"amount"`
}

type stakingClaimParams struct {
	Caller string `json:"caller"`
	Era    uint64 `json:"era"`
}

type stakingHarvestParams struct {
	Caller             string `json:"caller"`
	NewTotalDelegation string `json:"newTotalDelegation"`
	Era                uint64 `json:"era"`
}

type stakingStakeOfParams struct {
	User      string `json:"user"`
	Validator string `json:"validator"`
}

type stakingRelayAmountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type stakingConfirmParams struct {
	Caller    string `json:"caller"`
	Validator string `json:"validator"`
	Amount    string `json:"amount"`
}

type stakingKeeperParams struct {
	Caller string `json:"caller"`
	Keeper string `json:"keeper"`
}

type stakingStakeResult struct {
	Minted string `json:"minted"`
}

type stakingUnstakeResult struct {
	RequestID uint64 `json:"requestId"`
	Amount    string `json:"amount"`
	UnlockEra uint64 `json:"unlockEra"`
}

type stakingClaimResult struct {
	Amount     string   `json:"amount"`
	RequestIDs []uint64 `json:"requestIds"`
}

func (s *Server) handleStakingStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingStakeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	minted, err := s.node.Staking().Stake(params.Caller, params.Validator, params.Era, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stakingStakeResult{Minted: minted.String()})
}

func (s *Server) handleStakingUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingStakeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	request, err := s.node.Staking().Unstake(params.Caller, params.Validator, amount, params.Era)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stakingUnstakeResult{
		RequestID: request.ID,
		Amount:    request.Amount.String(),
		UnlockEra: request.UnlockEra,
	})
}

func (s *Server) handleStakingClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingClaimParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, ids, err := s.node.Staking().Claim(params.Caller, params.Era)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stakingClaimResult{Amount: amount.String(), RequestIDs: ids})
}

func (s *Server) handleStakingHarvest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingHarvestParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	total, err := parseAmount(params.NewTotalDelegation)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid total", err.Error())
		return
	}
	if err := s.node.Staking().HarvestRewards(params.Caller, total, params.Era); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"harvested": true})
}

func (s *Server) handleStakingExchangeRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	rate, err := s.node.Staking().ExchangeRate()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"exchangeRate": rate.String()})
}

func (s *Server) handleStakingTotalStaked(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.Staking().TotalStaked()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"totalStaked": total.String()})
}

func (s *Server) handleStakingStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.node.Staking().Stats()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stats)
}

func (s *Server) handleStakingStakeOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingStakeOfParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	staked, err := s.node.Staking().StakeOf(params.User, params.Validator)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"staked": staked.String()})
}

func (s *Server) handleStakingPendingDelegations(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	queue, err := s.node.Staking().PendingDelegations()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, queue)
}

func (s *Server) handleStakingPendingUndelegations(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	queue, err := s.node.Staking().PendingUndelegations()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, queue)
}

func (s *Server) handleStakingWithdrawForDelegation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingConfirmParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Staking().WithdrawForDelegation(params.Caller, params.Validator, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"withdrawn": true})
}

func (s *Server) handleStakingConfirmDelegation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingConfirmParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Staking().ConfirmDelegation(params.Caller, params.Validator, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"confirmed": true})
}

func (s *Server) handleStakingConfirmUndelegation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingConfirmParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Staking().ConfirmUndelegation(params.Caller, params.Validator, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"confirmed": true})
}

func (s *Server) handleStakingDepositFromUndelegation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingRelayAmountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Staking().DepositFromUndelegation(params.Caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"deposited": true})
}

func (s *Server) handleStakingSetKeeper(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakingKeeperParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Staking().SetKeeper(params.Caller, params.Keeper); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}
