package httpapi

import (
	"net/http"

	"github.com/finpulse/finpulse/internal/ingest"
)

func (s *Server) handleIngestManual(w http.ResponseWriter, r *http.Request) {
	var in ingest.Input
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	tx, err := s.ingest.Insert(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusCreated, tx)
}

func (s *Server) handleIngestBulk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transactions []ingest.Input `json:"transactions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	txs, err := s.ingest.InsertBulk(r.Context(), userID(r.Context()), body.Transactions)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{
		"inserted":     len(txs),
		"transactions": txs,
	})
}

func (s *Server) handleCSVPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CSV string `json:"csv"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	preview, err := s.ingest.PreviewCSV(body.CSV)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, preview)
}

func (s *Server) handleCSVImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CSV     string         `json:"csv"`
		Mapping ingest.Mapping `json:"mapping,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	result, err := s.ingest.ImportCSV(r.Context(), userID(r.Context()), body.CSV, body.Mapping)
	if err != nil {
		writeErr(w, s.log, err, s.dev)
		return
	}
	writeData(w, http.StatusOK, result)
}
