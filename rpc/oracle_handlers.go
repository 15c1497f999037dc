package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"
)

func parseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

type priceResult struct {
	Price string `json:"price"`
}

type priceDataResult struct {
	Price     string `json:"price"`
	UpdatedAt uint64 `json:"updatedAt"`
	RoundID   uint64 `json:"roundId"`
}

type oracleUpdateParams struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

type oracleFeedParams struct {
	FeedID string `json:"feedId"`
}

type oracleMaxAgeParams struct {
	Caller string `json:"caller"`
	MaxAge uint64 `json:"maxAge"`
}

type oracleFallbackParams struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

type oracleUseFallbackParams struct {
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

type oracleUpdaterParams struct {
	Caller  string `json:"caller"`
	Updater string `json:"updater"`
}

type oracleFeedAddressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *Server) handleOracleGetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	price, err := s.node.Oracle().GetPrice()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceResult{Price: price.String()})
}

func (s *Server) handleOracleLatestPriceData(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	data, err := s.node.Oracle().LatestPriceData()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceDataResult{
		Price:     data.Price.String(),
		UpdatedAt: data.UpdatedAt,
		RoundID:   data.RoundID,
	})
}

func (s *Server) handleOracleIsPriceStale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stale, err := s.node.Oracle().IsPriceStale()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"stale": stale})
}

func (s *Server) handleOracleGetPriceAge(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	age, err := s.node.Oracle().PriceAge()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"age": age})
}

func (s *Server) handleOracleGetMaxAge(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	maxAge, err := s.node.Oracle().MaxAge()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"maxAge": maxAge})
}

func (s *Server) handleOracleUpdatePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	if err := s.node.Oracle().UpdatePrice(params.Caller, price); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleFetchFromFeed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleFeedParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().FetchFromFeed(params.FeedID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleSetMaxAge(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleMaxAgeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().SetMaxAge(params.Caller, params.MaxAge); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleSetFallbackPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleFallbackParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	if err := s.node.Oracle().SetFallbackPrice(params.Caller, price); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleSetUseFallback(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUseFallbackParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().SetUseFallback(params.Caller, params.Enabled); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleSetFeedAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleFeedAddressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().SetFeedAddress(params.Caller, params.Address); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleAddUpdater(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdaterParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().AddUpdater(params.Caller, params.Updater); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleOracleRemoveUpdater(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oracleUpdaterParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Oracle().RemoveUpdater(params.Caller, params.Updater); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}
