package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gochang/agrialimi/internal/model"
	"github.com/gochang/agrialimi/internal/push"
	"github.com/gochang/agrialimi/internal/store"
)

type PushHandler struct {
	subs    *store.SubscriptionStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(subs *store.SubscriptionStore, service *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, service: service, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dhKey  string `json:"p256dh_key"`
	AuthKey    string `json:"auth_key"`
	DeviceName string `json:"device_name"`
}

// Subscribe registers a device for web push delivery.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || req.P256dhKey == "" || req.AuthKey == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh_key and auth_key are required")
		return
	}

	sub, err := h.subs.Create(userID, req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName)
	if err != nil {
		h.logger.Error("create subscription", "user", userID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe removes one device registration.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}
	subID := r.PathValue("id")
	if subID == "" {
		writeError(w, http.StatusBadRequest, "subscription id is required")
		return
	}

	if err := h.subs.Delete(userID, subID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListSubscriptions returns the user's registered devices.
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUser(w, r)
	if !ok {
		return
	}

	subs, err := h.subs.ListByUser(userID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

// GetVAPIDKey returns the public key clients need to subscribe.
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}
