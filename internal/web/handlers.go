package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/types"
)

// maxBodyBytes bounds request bodies; a fingerprint is well under 1 KiB.
const maxBodyBytes = 1 << 20

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

type encodeRequest struct {
	Landmarks []float64 `json:"landmarks"`
}

type encodeResponse struct {
	Ash    string `json:"ash,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type similarityRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type similarityResponse struct {
	ash.Comparison
	Verdict ash.Verdict `json:"verdict"`
}

type identifyRequest struct {
	Ash string `json:"ash"`
}

type identifyResponse struct {
	Found bool    `json:"found"`
	ID    int     `json:"id,omitempty"`
	Name  string  `json:"name,omitempty"`
	Score float32 `json:"score"`
}

type identityResponse struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Ash       string    `json:"ash"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, types.ErrorResult{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// encode turns a landmark buffer into a fingerprint. Encoder failures are
// answered with 422 and the boundary sentinel in "status".
func (s *Server) encode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res := ash.EncodeBuffer(req.Landmarks)
	s.log.LogEncode(r.Context(), "http", res.Failure.String())
	if !res.OK() {
		respondJSON(w, http.StatusUnprocessableEntity, encodeResponse{
			Status: res.String(),
			Error:  res.Err().Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, encodeResponse{Ash: res.String(), Status: "ok"})
}

// similarity always answers 200 for a well-formed request: fingerprints
// that cannot be compared score 0.
func (s *Server) similarity(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmp := s.comparator.Compare(req.A, req.B)
	s.log.LogCompare(r.Context(), cmp.Score, string(cmp.Reason))
	respondJSON(w, http.StatusOK, similarityResponse{
		Comparison: cmp,
		Verdict:    ash.Decide(cmp.Score, s.threshold),
	})
}

func (s *Server) identify(w http.ResponseWriter, r *http.Request) {
	if s.finder == nil {
		respondError(w, http.StatusServiceUnavailable, "identity store not configured")
		return
	}

	var req identifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fp, err := ash.Decode(req.Ash)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.finder.FindClosestIdentity(r.Context(), fp, s.comparator, s.threshold)
	s.log.LogIdentify(r.Context(), m.ID, m.Score, err)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "identity lookup failed")
		return
	}

	resp := identifyResponse{Found: m.Found(), Score: m.Score}
	if m.Found() {
		resp.ID, resp.Name = m.ID, m.Name
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listIdentities(w http.ResponseWriter, r *http.Request) {
	if s.finder == nil {
		respondError(w, http.StatusServiceUnavailable, "identity store not configured")
		return
	}

	identities, err := s.finder.ListIdentities(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "listing identities failed")
		return
	}

	out := make([]identityResponse, 0, len(identities))
	for _, it := range identities {
		out = append(out, identityResponse{
			ID:        it.ID,
			Name:      it.Name,
			Ash:       it.Ash.String(),
			Count:     it.Count,
			CreatedAt: it.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
