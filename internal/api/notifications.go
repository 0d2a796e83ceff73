package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/marcus/arcsync/internal/notify"
	"github.com/marcus/arcsync/internal/pushdb"
)

// SubscribedMessage is returned after a successful registration.
const SubscribedMessage = "Subscription added successfully."

// SubscribeRequest is the browser's PushSubscription JSON.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscribeResponse acknowledges a registration.
type SubscribeResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (s *Server) handleVapidPublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.config.VAPIDPublicKey})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.notify.Subscriptions(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list subscriptions", "err", err)
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if subs == nil {
		subs = []pushdb.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidBody, "invalid subscription body: "+err.Error())
		return
	}

	id, err := s.notify.Register(r.Context(), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		code := ErrCodeInternal
		if errors.Is(err, notify.ErrInvalidSubscription) {
			code = ErrCodeBadRequest
		} else {
			logFor(r.Context()).Error("register subscription", "err", err)
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	s.metrics.RecordSubscription()
	logFor(r.Context()).Info("subscribed", "id", id)
	writeJSON(w, http.StatusOK, SubscribeResponse{Message: SubscribedMessage, ID: id})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidBody, "read body: "+err.Error())
		return
	}
	message := strings.TrimSpace(string(body))

	res, err := s.notify.Dispatch(r.Context(), message)
	switch {
	case errors.Is(err, notify.ErrNoSubscription):
		writeError(w, http.StatusNotFound, ErrCodeNoSubscription, err.Error())
		return
	case err != nil:
		logFor(r.Context()).Error("dispatch notification", "err", err)
		writeError(w, http.StatusBadRequest, ErrCodeInternal, err.Error())
		return
	}

	s.metrics.RecordDispatch(res.TotalSent-res.FailedCount, res.FailedCount)
	writeJSON(w, http.StatusOK, res)
}
