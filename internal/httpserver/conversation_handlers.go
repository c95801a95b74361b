package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

type conversationCreateRequest struct {
	Type        domain.ConversationType `json:"type"`
	UserID      string                  `json:"user_id,omitempty"`
	Name        string                  `json:"name,omitempty"`
	Description string                  `json:"description,omitempty"`
	Avatar      string                  `json:"avatar,omitempty"`
	MemberIDs   []string                `json:"member_ids,omitempty"`
	Settings    domain.GroupSettings    `json:"settings,omitempty"`
}

type membersRequest struct {
	UserIDs []string `json:"user_ids"`
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func conversationID(r *http.Request) string { return chi.URLParam(r, "conversationID") }

// @Summary      Create a conversation
// @Description  type=private opens (or returns) the 1:1 conversation with user_id; type=group creates a group with the caller as admin
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body conversationCreateRequest true "Conversation"
// @Success      201  {object}  envelope{content=domain.Conversation}
// @Failure      400  {object}  envelope
// @Router       /conversations [post]
func handleCreateConversation(convSvc *service.ConversationService, groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		actor := CurrentUser(r).ID

		var (
			conv *domain.Conversation
			err  error
		)
		switch req.Type {
		case domain.ConversationPrivate:
			conv, err = convSvc.OpenPrivate(r.Context(), actor, req.UserID)
		case domain.ConversationGroup:
			conv, err = groupSvc.Create(r.Context(), actor, service.CreateGroupInput{
				Name:        req.Name,
				Description: req.Description,
				Avatar:      req.Avatar,
				MemberIDs:   req.MemberIDs,
				Settings:    req.Settings,
			})
		default:
			err = domain.ErrInvalidRequest
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.ListForUser(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := convSvc.Get(r.Context(), CurrentUser(r).ID, conversationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, conv)
	}
}

// @Summary      Update group info
// @Tags         groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        input body domain.GroupInfo true "Fields to change"
// @Success      200  {object}  envelope{content=service.GroupEvent}
// @Failure      403  {object}  envelope
// @Router       /conversations/{conversationID} [put]
func handleUpdateInfo(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info domain.GroupInfo
		if err := decodeBody(r, &info); err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := groupSvc.UpdateInfo(r.Context(), CurrentUser(r).ID, conversationID(r), info)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

// @Summary      Add members
// @Tags         groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        input body membersRequest true "Users to add"
// @Success      200  {object}  envelope{content=service.GroupEvent}
// @Failure      403  {object}  envelope
// @Router       /conversations/{conversationID}/members [post]
func handleAddMembers(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req membersRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := groupSvc.AddMembers(r.Context(), CurrentUser(r).ID, conversationID(r), req.UserIDs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

// @Summary      Remove a member
// @Tags         groups
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        userID path string true "Member id"
// @Success      200  {object}  envelope{content=service.GroupEvent}
// @Failure      403  {object}  envelope
// @Router       /conversations/{conversationID}/members/{userID} [delete]
func handleRemoveMember(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := groupSvc.RemoveMember(r.Context(), CurrentUser(r).ID, conversationID(r), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

// @Summary      Change a member's role
// @Tags         groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Param        userID path string true "Member id"
// @Param        input body roleRequest true "New role"
// @Success      200  {object}  envelope{content=service.GroupEvent}
// @Failure      403  {object}  envelope
// @Router       /conversations/{conversationID}/members/{userID}/role [put]
func handleChangeRole(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roleRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := groupSvc.ChangeRole(r.Context(), CurrentUser(r).ID, conversationID(r), chi.URLParam(r, "userID"), req.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

func handleUpdateSettings(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.GroupSettings
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, r, err)
			return
		}
		ev, err := groupSvc.UpdateSettings(r.Context(), CurrentUser(r).ID, conversationID(r), patch)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

// @Summary      Leave a group
// @Tags         groups
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation id"
// @Success      200  {object}  envelope{content=service.GroupEvent}
// @Router       /conversations/{conversationID}/leave [post]
func handleLeave(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := groupSvc.Leave(r.Context(), CurrentUser(r).ID, conversationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}

func handleDissolve(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := groupSvc.Dissolve(r.Context(), CurrentUser(r).ID, conversationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, ev)
	}
}
