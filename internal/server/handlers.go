package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "clarify-api/internal/common/errors"
	"clarify-api/internal/models"
)

const headerAPIKey = "X-API-Key"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Welcome to the Clarify AI backend"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.draining.Load() {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleDemoRepair is unauthenticated and unmetered.
func (s *Server) handleDemoRepair(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRepairRequest(w, r, true)
	if err != nil {
		s.errs.HandleHTTPError(w, r, err)
		return
	}

	if utf8.RuneCountInString(req.BrokenJSON) > s.limits.DemoMaxChars {
		s.errs.HandleHTTPError(w, r, apperrors.NewPayloadTooLargeError(s.limits.DemoMaxChars, true))
		return
	}

	result, err := s.deps.Pipeline.Repair(r.Context(), req.BrokenJSON)
	if err != nil {
		s.errs.HandleHTTPError(w, r, repairError(err, true))
		return
	}

	s.jsonResponse(w, http.StatusOK, models.DemoRepairResponse{
		RepairedJSON: result.Value,
		Tier:         result.Tier,
	})
}

// handleMeteredRepair checks credential, account, balance and size in that
// order, repairs, then bills one credit.
func (s *Server) handleMeteredRepair(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRepairRequest(w, r, false)
	if err != nil {
		s.errs.HandleHTTPError(w, r, err)
		return
	}

	account, err := s.deps.Gate.Authorize(r.Context(), r.Header.Get(headerAPIKey))
	if err != nil {
		s.errs.HandleHTTPError(w, r, gateError(err))
		return
	}

	if utf8.RuneCountInString(req.BrokenJSON) > s.limits.MeteredMaxChars {
		s.errs.HandleHTTPError(w, r, apperrors.NewPayloadTooLargeError(s.limits.MeteredMaxChars, false))
		return
	}

	result, err := s.deps.Pipeline.Repair(r.Context(), req.BrokenJSON)
	if err != nil {
		s.errs.HandleHTTPError(w, r, repairError(err, false))
		return
	}

	creditsLeft, err := s.deps.Ledger.Decrement(r.Context(), account.ID, account.Credits)
	if err != nil {
		s.errs.HandleHTTPError(w, r, ledgerError(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, models.MeteredRepairResponse{
		RepairedJSON: result.Value,
		Tier:         result.Tier,
		CreditsLeft:  creditsLeft,
	})
}

// decodeRepairRequest bounds the body size, validates it against the request
// schema and decodes it.
func (s *Server) decodeRepairRequest(w http.ResponseWriter, r *http.Request, demo bool) (*models.RepairRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			limit := s.limits.MeteredMaxChars
			if demo {
				limit = s.limits.DemoMaxChars
			}
			return nil, apperrors.NewPayloadTooLargeError(limit, demo)
		}
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}

	result, err := s.schema.ValidateBytes(body)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		messages := result.GetErrorMessages()
		return nil, apperrors.NewInvalidRequestError(strings.Join(messages, "; ")).
			WithMetadata("fieldErrors", len(messages))
	}

	var req models.RepairRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	return &req, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}
