// Package respond writes the JSON response envelope used by the API.
package respond

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope for every API reply.
type Response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Pagination interface{} `json:"pagination,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// Paginated writes a 200 response carrying a page of results.
func Paginated(w http.ResponseWriter, data, pagination interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Pagination: pagination})
}

// Fail writes an error response with the given status code.
func Fail(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, Response{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(body)
}
