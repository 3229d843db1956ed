package http

import (
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/services"
)

type sessionEnvelope struct {
	Message string    `json:"message"`
	User    core.User `json:"user"`
	Token   string    `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := parseRegistration(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "User registered",
		log.FieldUserID, session.User.ID)
	writeJSON(w, r, http.StatusCreated, sessionEnvelope{Message: MsgUserRegistered, User: session.User, Token: session.Token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := parseCredentials(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.users.Login(r.Context(), in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Login rejected",
				log.FieldOperation, log.OpLogin)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sessionEnvelope{Message: MsgLoginOK, User: session.User, Token: session.Token})
}
