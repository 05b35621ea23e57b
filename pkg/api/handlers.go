package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/ethpandaops/compressoor/pkg/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

type compressorsResponse struct {
	Compressors []string `json:"compressors"`
}

type resultsResponse struct {
	Results []store.Analysis `json:"results"`
}

type pendingResponse struct {
	Machine string            `json:"machine"`
	Arch    string            `json:"arch"`
	Pending []matrix.TestCase `json:"pending"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// identityFromQuery reads the machine and arch query parameters.
func identityFromQuery(r *http.Request) machine.Identity {
	q := r.URL.Query()

	return machine.Identity{
		Machine: q.Get("machine"),
		Arch:    q.Get("arch"),
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMachines returns a progress summary for every machine identity
// with recorded results.
func (s *server) handleMachines(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListIdentities(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list machine identities")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	summaries := make([]*store.Summary, 0, len(ids))

	for _, id := range ids {
		summary, err := s.store.Summarize(r.Context(), id)
		if err != nil {
			s.log.WithError(err).WithField("machine", id.String()).
				Error("Failed to summarize machine")
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"internal error"})

			return
		}

		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, summaries)
}

func (s *server) handleCompressors(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.KnownCompressors(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list compressors")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, compressorsResponse{Compressors: names})
}

// handleResults returns analysis rows, optionally filtered by machine
// and arch.
func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListAnalysis(r.Context(), identityFromQuery(r))
	if err != nil {
		s.log.WithError(err).Error("Failed to list analysis")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if rows == nil {
		rows = []store.Analysis{}
	}

	writeJSON(w, http.StatusOK, resultsResponse{Results: rows})
}

// handlePending returns the test cases not yet measured for one identity.
func (s *server) handlePending(w http.ResponseWriter, r *http.Request) {
	id := identityFromQuery(r)
	if err := id.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	pending, err := s.store.PendingWork(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("Failed to list pending work")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, pendingResponse{
		Machine: id.Machine,
		Arch:    id.Arch,
		Pending: pending,
	})
}
