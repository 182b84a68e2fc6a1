package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/al-bashkir/social-login/internal/session"
)

// NewSessionHandler answers admin requests from the session manager.
func NewSessionHandler(sessions *session.Manager) RequestHandler {
	return func(_ context.Context, req *Request) (*Response, error) {
		switch req.Type {
		case MessageTypeListSessions:
			return &Response{Status: StatusOK, Sessions: summarize(sessions.List())}, nil

		case MessageTypeRevokeSession:
			id, err := sessions.DeleteByPrefix(req.IDPrefix)
			switch {
			case errors.Is(err, session.ErrNotFound):
				return errorResponse("no session matches prefix"), nil
			case errors.Is(err, session.ErrAmbiguous):
				return errorResponse("prefix matches more than one session"), nil
			case err != nil:
				return nil, fmt.Errorf("failed to revoke session: %w", err)
			}

			slog.Info("session revoked by operator", "session_id", session.ShortID(id))
			return &Response{Status: StatusOK, Revoked: session.ShortID(id)}, nil
		}

		return errorResponse("unsupported request type"), nil
	}
}

func summarize(list []session.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		summary := SessionSummary{
			IDPrefix:  session.ShortID(s.ID),
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		}
		if s.Principal != nil {
			summary.Provider = s.Principal.Provider
			summary.RegistrationID = s.Principal.RegistrationID
			summary.Name = s.Principal.DisplayName
		}
		out = append(out, summary)
	}
	return out
}

func errorResponse(msg string) *Response {
	return &Response{Status: StatusError, Error: msg}
}
