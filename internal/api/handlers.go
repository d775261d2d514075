package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/hubclient"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/internal/notify"
	"zerointrusion/vault-client/internal/router"
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// statusFor maps the fault taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.KindAuthDenied:
		return http.StatusForbidden
	case faults.KindAuthCancelled:
		return http.StatusConflict
	case faults.KindAuthExpired:
		return http.StatusGone
	case faults.KindIdentityIncomplete:
		return http.StatusPreconditionFailed
	case faults.KindMalformedPayload, faults.KindCryptoVerificationFailed:
		return http.StatusUnprocessableEntity
	case faults.KindNetworkFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFault(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{
		Error:     err.Error(),
		Kind:      faults.KindOf(err).String(),
		Retryable: faults.Retryable(err),
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "", "request body too large")
		return nil, false
	}
	return body, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, faults.KindMalformedPayload.String(), "invalid json body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type routeResponse struct {
	router.Result
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// handleQR always answers 200 for handled and ignored payloads; a failed
// operation carries the fault's status.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res := s.router.Route(r.Context(), string(body))
	resp := routeResponse{Result: res}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		resp.Kind = res.Kind().String()
		resp.Retryable = faults.Retryable(res.Err)
		status = statusFor(res.Err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	p, err := notify.ParsePush(body)
	if err != nil {
		writeFault(w, err)
		return
	}
	win, err := s.windows.Receive(p)
	switch {
	case errors.Is(err, notify.ErrUnsupportedAction):
		writeJSON(w, http.StatusAccepted, router.Result{Status: router.StatusIgnored, Reason: "unsupported_action"})
		return
	case err != nil:
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, win.View())
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	win, ok := s.windows.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "", notify.ErrWindowNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, win.View())
}

func (s *Server) handleAllow(w http.ResponseWriter, r *http.Request) {
	view, err := s.windows.Allow(r.Context(), chi.URLParam(r, "id"))
	s.writeWindow(w, view, err)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	view, err := s.windows.Decline(chi.URLParam(r, "id"))
	s.writeWindow(w, view, err)
}

func (s *Server) writeWindow(w http.ResponseWriter, view notify.View, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, notify.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "", err.Error())
	case errors.Is(err, notify.ErrWindowClosed):
		writeJSON(w, http.StatusConflict, view)
	default:
		writeJSON(w, statusFor(err), view)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.device.Status(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	res, err := s.device.Initialize(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	var req hubclient.Recovery
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.device.UpdateRecovery(r.Context(), req)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, hubclient.ErrPrivacyPolicyRequired), errors.Is(err, identity.ErrMissingField):
		writeError(w, http.StatusUnprocessableEntity, "", err.Error())
	default:
		writeFault(w, err)
	}
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	payload, err := s.device.ExportClone(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"payload": payload})
}

type capabilityRequest struct {
	Capability   string `json:"capability"`
	EnrollmentID string `json:"enrollment_id"`
}

func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request) {
	var req capabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := biometric.ParseCapability(req.Capability)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	enrollment := strings.TrimSpace(req.EnrollmentID)
	if c.Biometric() && enrollment == "" {
		writeError(w, http.StatusUnprocessableEntity, "", "enrollment_id is required for a biometric capability")
		return
	}
	s.bridge.SetCapability(c, enrollment)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"prompts": s.bridge.Pending(),
		"at":      time.Now().UTC(),
	})
}

type promptAnswer struct {
	Result string `json:"result"`
}

func (s *Server) handleResolvePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptAnswer
	if !decodeJSON(w, r, &req) {
		return
	}
	var result biometric.PromptResult
	switch strings.ToLower(strings.TrimSpace(req.Result)) {
	case "succeeded", "success", "granted":
		result = biometric.PromptSucceeded
	case "cancelled", "canceled":
		result = biometric.PromptCancelled
	case "rejected", "failed":
		result = biometric.PromptRejected
	default:
		writeError(w, http.StatusBadRequest, "", "result must be succeeded, cancelled or rejected")
		return
	}
	if err := s.bridge.Resolve(chi.URLParam(r, "id"), result); err != nil {
		writeError(w, http.StatusNotFound, "", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
