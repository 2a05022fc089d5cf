// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

// The upload protocol signals errors in-band: every action response is
// HTTP 200 with a success flag, matching the client contract.

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes an in-band success payload.
func respond(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// respondErr writes an in-band protocol error.
func respondErr(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, errorResponse{Success: false, Error: err.Error()})
}
