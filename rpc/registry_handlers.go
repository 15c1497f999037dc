package rpc

import (
	"net/http"

	"stayer/native/registry"
)

type registryUpdateParams struct {
	Caller string                     `json:"caller"`
	Batch  []registry.ValidatorUpdate `json:"batch"`
	PAvg   uint64                     `json:"pAvg"`
	Era    uint64                     `json:"era"`
}

type registryValidatorParams struct {
	PublicKey string `json:"publicKey"`
}

type registryIsValidParams struct {
	PublicKey string `json:"publicKey"`
	Era       uint64 `json:"era"`
}

type registryKeeperParams struct {
	Caller string `json:"caller"`
	Keeper string `json:"keeper"`
}

func (s *Server) handleRegistryUpdateValidators(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registryUpdateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Registry().UpdateValidators(params.Caller, params.Batch, params.PAvg, params.Era); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]int{"updated": len(params.Batch)})
}

func (s *Server) handleRegistryGetValidator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registryValidatorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	record, err := s.node.Registry().Validator(params.PublicKey)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, record)
}

func (s *Server) handleRegistryGetNetworkPAvg(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pAvg, err := s.node.Registry().NetworkPAvg()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"pAvg": pAvg})
}

func (s *Server) handleRegistryGetLastUpdateEra(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	era, err := s.node.Registry().LastUpdateEra()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"era": era})
}

func (s *Server) handleRegistryIsValid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registryIsValidParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	valid, err := s.node.Registry().IsValid(params.PublicKey, params.Era)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"valid": valid})
}

func (s *Server) handleRegistrySetKeeper(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registryKeeperParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if err := s.node.Registry().SetKeeper(params.Caller, params.Keeper); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}
