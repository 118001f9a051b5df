package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freeda-support/src/ticket"
)

var errBadRequest = errors.New("invalid request body")

// statusFor maps ticket errors onto HTTP status codes and public messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound, "Ticket introuvable"
	case errors.Is(err, ticket.ErrTicketClosed):
		return http.StatusConflict, "Ticket fermé"
	case errors.Is(err, ticket.ErrInvalidTransition):
		return http.StatusBadRequest, "Action non autorisée"
	case errors.Is(err, ticket.ErrEmptyMessage):
		return http.StatusBadRequest, "Message vide"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Requête invalide"
	case errors.Is(err, ticket.ErrStorage):
		return http.StatusInternalServerError, "Erreur de stockage"
	default:
		return http.StatusInternalServerError, "Erreur interne"
	}
}

// fail writes err as a JSON error. Storage failures also carry the
// underlying cause.
func (s *Server) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	body := gin.H{"error": msg}
	if status >= http.StatusInternalServerError {
		s.log.Error("[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		if errors.Is(err, ticket.ErrStorage) {
			body["detail"] = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}
