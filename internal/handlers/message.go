package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/doussel/internal/logger"
	channelService "github.com/nikhil/doussel/internal/service/channels"
	messageService "github.com/nikhil/doussel/internal/service/messages"
)

// MessageHandler serves the owner side of lease conversations.
type MessageHandler struct {
	Messages *messageService.MessageService
	Channels *channelService.ChannelService
	Log      *logger.Logger
}

func NewMessageHandler(messages *messageService.MessageService, conversations *channelService.ChannelService) *MessageHandler {
	return &MessageHandler{Messages: messages, Channels: conversations, Log: logger.NewLogger("message-handler")}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	messages, err := h.Messages.ListOwnerMessages(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.Messages.SendOwnerMessage(r.Context(), claims.UserID, mux.Vars(r)["id"], req.Content)
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.Channels.ListConversations(r.Context(), claims.UserID, queryInt(r, "page", 1), queryInt(r, "per_page", 20))
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.Channels.MarkConversationRead(r.Context(), claims.UserID, mux.Vars(r)["leaseID"])
	if err != nil {
		respondWithServiceError(w, r, h.Log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
