package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

type messageCreateRequest struct {
	Content string        `json:"content"`
	ReplyTo string        `json:"reply_to"`
	Files   []domain.File `json:"files"`
}

type messageEditRequest struct {
	Content string `json:"content"`
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

func messageID(r *http.Request) string { return chi.URLParam(r, "messageID") }

// @Summary      Send a message
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        input body messageCreateRequest true "Message"
// @Success      201  {object}  envelope{content=domain.Message}
// @Failure      403  {object}  envelope
// @Router       /conversations/{conversationID}/messages [post]
func handleCreateMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		msg, err := msgSvc.Send(r.Context(), CurrentUser(r).ID, service.SendInput{
			ConversationID: conversationID(r),
			Content:        req.Content,
			ReplyTo:        req.ReplyTo,
			Files:          req.Files,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, msg)
	}
}

// @Summary      List messages
// @Description  Newest messages visible to the caller, oldest first. before is RFC 3339.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        limit query int false "Page size"
// @Param        before query string false "Only messages sent before this instant"
// @Success      200  {object}  envelope{content=[]domain.Message}
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var before time.Time
		if v := r.URL.Query().Get("before"); v != "" {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidRequest)
				return
			}
			before = t
		}
		msgs, err := msgSvc.List(r.Context(), CurrentUser(r).ID, conversationID(r), queryInt(r, "limit", 50), before)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, msgs)
	}
}

func handleMarkConversationRead(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := msgSvc.MarkRead(r.Context(), CurrentUser(r).ID, conversationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, res)
	}
}

func handleEditMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageEditRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := msgSvc.Edit(r.Context(), CurrentUser(r).ID, conversationID(r), messageID(r), req.Content)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, res)
	}
}

// @Summary      Delete a message
// @Description  scope=self hides the message for the caller; scope=everyone revokes it (sender only)
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        messageID path string true "Message id"
// @Param        scope query string false "self or everyone" default(self)
// @Success      200  {object}  envelope{content=service.MessageRefPayload}
// @Failure      409  {object}  envelope
// @Router       /conversations/{conversationID}/messages/{messageID} [delete]
func handleDeleteMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			res *service.MessageRefPayload
			err error
		)
		switch r.URL.Query().Get("scope") {
		case "", "self":
			res, err = msgSvc.DeleteForSelf(r.Context(), CurrentUser(r).ID, conversationID(r), messageID(r))
		case "everyone":
			res, err = msgSvc.Revoke(r.Context(), CurrentUser(r).ID, conversationID(r), messageID(r))
		default:
			err = domain.ErrInvalidRequest
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, res)
	}
}

func handleReact(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reactionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := msgSvc.React(r.Context(), CurrentUser(r).ID, conversationID(r), messageID(r), req.Reaction)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, res)
	}
}

func handleUnreact(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := msgSvc.Unreact(r.Context(), CurrentUser(r).ID, conversationID(r), messageID(r), chi.URLParam(r, "reaction"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, res)
	}
}
