package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/beecolony/abcopt/internal/errors"
	"github.com/beecolony/abcopt/internal/logging"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
	rpcNotFound       = -32004
	rpcConflict       = -32009
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// decodeParams accepts both named params and a one-element positional array.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apperrors.BadRequest("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return apperrors.BadRequest("invalid parameter format: %v", err)
		}
		if len(list) == 0 {
			return apperrors.BadRequest("missing required parameters")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.BadRequest("invalid parameter format, expected object: %v", err)
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	var p idParams
	if err := decodeParams(raw, &p); err != nil {
		return "", err
	}
	if p.OptimizationID == "" {
		return "", apperrors.BadRequest("optimization_id is required")
	}
	return p.OptimizationID, nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "colony.run":
		var req RunRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.runSync(r.Context(), req)
		}
	case "optimization.start":
		var req RunRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startOptimization(req)
		}
	case "optimization.status":
		var id string
		if id, err = decodeID(request.Params); err == nil {
			result, err = s.optimizationStatus(id)
		}
	case "optimization.cancel":
		var id string
		if id, err = decodeID(request.Params); err == nil {
			if err = s.cancelOptimization(id); err == nil {
				result = map[string]string{"optimization_id": id, "status": string(StatusCancelled)}
			}
		}
	case "datasets.list":
		result = datasetSummaries()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		switch apperrors.HTTPStatus(err) {
		case http.StatusBadRequest:
			code = rpcInvalidParams
		case http.StatusNotFound:
			code = rpcNotFound
		case http.StatusConflict:
			code = rpcConflict
		}
		if code == rpcServerError {
			logging.FromContext(r.Context()).WithError(err).Error("JSON-RPC call failed", map[string]interface{}{
				"method": request.Method,
			})
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Debug("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
