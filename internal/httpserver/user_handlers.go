package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

type profileRequest struct {
	DisplayName *string `json:"display_name"`
	Avatar      *string `json:"avatar"`
	Bio         *string `json:"bio"`
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func handleListUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListActive(r.Context(), queryInt(r, "offset", 0), queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, users)
	}
}

// @Summary      Online users
// @Description  Ids of users with at least one live socket
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  envelope
// @Router       /users/online [get]
func handleListOnlineUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, map[string]any{"user_ids": userSvc.OnlineUsers()})
	}
}

func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userSvc.GetByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, user)
	}
}

// @Summary      Update profile
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body profileRequest true "Profile fields"
// @Success      200  {object}  envelope{content=domain.User}
// @Failure      400  {object}  envelope
// @Router       /users/me [patch]
func handleUpdateProfile(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		user, err := userSvc.UpdateProfile(r.Context(), CurrentUser(r).ID, domain.ProfilePatch{
			DisplayName: req.DisplayName,
			Avatar:      req.Avatar,
			Bio:         req.Bio,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, user)
	}
}

func handleDeleteMe(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := userSvc.SoftDelete(r.Context(), CurrentUser(r).ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, nil)
	}
}

// @Summary      Unread conversations
// @Description  The caller's unread entries, newest first
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  envelope{content=[]domain.UnreadEntry}
// @Router       /users/me/unread [get]
func handleUnread(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := userSvc.UnreadSummary(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, entries)
	}
}
