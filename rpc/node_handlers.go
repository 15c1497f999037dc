package rpc

import (
	"net/http"

	"stayer/core/types"
)

type nodeEventsParams struct {
	Limit int `json:"limit"`
}

type nodePauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

// eventCarrier is implemented by every engine event wrapper.
type eventCarrier interface {
	Event() *types.Event
}

func (s *Server) handleNodeGetEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params nodeEventsParams
	if len(req.Params) == 1 {
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
			return
		}
	}
	recent := s.node.Events().Recent(params.Limit)
	out := make([]*types.Event, 0, len(recent))
	for _, evt := range recent {
		carrier, ok := evt.(eventCarrier)
		if !ok {
			continue
		}
		out = append(out, carrier.Event())
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleNodeSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params nodePauseParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if params.Module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "module required", nil)
		return
	}
	s.node.Pauses().SetPaused(params.Module, params.Paused)
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}
