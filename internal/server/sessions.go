// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/dataset"
	"github.com/jeranaias/channelchat/internal/dispatch"
	"github.com/jeranaias/channelchat/internal/llm"
	"github.com/jeranaias/channelchat/internal/progress"
	"github.com/jeranaias/channelchat/internal/session"
	"github.com/jeranaias/channelchat/internal/storage"
)

// ============================================================================
// SESSION TYPES
// ============================================================================

// CreateSessionRequest is the optional body of POST /api/sessions.
type CreateSessionRequest struct {
	UserName string `json:"user_name"`
}

// AttachmentResponse describes an accepted attachment.
type AttachmentResponse struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Records int      `json:"records,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// TurnRequest is the body of POST /api/sessions/{id}/turns.
type TurnRequest struct {
	Text string `json:"text"`
}

// Turn event types.
const (
	TurnEventUpdate   = "update"
	TurnEventComplete = "complete"
	TurnEventError    = "error"
)

// TurnEvent is one record of a turn's event stream. Update events carry
// the record as it grows; the stream ends with complete or error.
type TurnEvent struct {
	Type    string        `json:"type"`
	Mode    string        `json:"mode,omitempty"`
	Turn    *storage.Turn `json:"turn,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e TurnEvent) Terminal() bool {
	return e.Type == TurnEventComplete || e.Type == TurnEventError
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	sess := s.deps.Sessions.Create(strings.TrimSpace(req.UserName))
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.deps.Sessions.Delete(id)
	if _, err := s.deps.Turns.DeleteSession(r.Context(), id); err != nil {
		s.logger.Error("SESSION_DELETE_FAILED", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttach accepts one multipart "file" part: a .csv or .json dataset,
// or an image for the next turn.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Attachment too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read attachment")
		return
	}
	mimeType := header.Header.Get("Content-Type")

	if strings.HasPrefix(mimeType, "image/") {
		sess.AttachImage(llm.Image{MIMEType: mimeType, Data: data})
		writeJSON(w, http.StatusOK, AttachmentResponse{Kind: "image", Name: header.Filename})
		return
	}

	kind, ok := dataset.DetectKind(header.Filename, mimeType)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "Attach a .csv, a .json or an image")
		return
	}
	ds, err := dataset.Load(header.Filename, string(data), kind)
	if err != nil {
		s.logger.Info("ATTACHMENT_REJECTED",
			zap.String("session", sess.ID()),
			zap.String("name", header.Filename),
			zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.Attach(ds)

	s.logger.Info("DATASET_ATTACHED",
		zap.String("session", sess.ID()),
		zap.String("name", ds.Name()),
		zap.Stringer("kind", kind),
		zap.Int("records", ds.Len()))
	writeJSON(w, http.StatusOK, AttachmentResponse{
		Kind:    kind.String(),
		Name:    ds.Name(),
		Records: ds.Len(),
		Fields:  ds.Fields(),
		Summary: dataset.Summarize(ds),
	})
}

// ============================================================================
// TURN HANDLERS
// ============================================================================

// handleTurn runs one chat turn and streams TurnEvents. Only one turn per
// session runs at a time; a second request gets 409.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body TurnRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}

	turn, err := sess.BeginTurn()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	req := dispatch.Request{SessionID: sess.ID(), Text: body.Text, Turn: turn}
	if req.Empty() {
		turn.Abort()
		writeError(w, http.StatusBadRequest, "Message text or an attachment is required")
		return
	}

	pw, err := progress.NewHTTPWriter(w)
	if err != nil {
		turn.Abort()
		s.logger.Error("SSE_UNSUPPORTED", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	defer pw.Close()

	ctx := r.Context()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	out, err := s.deps.Dispatcher.Dispatch(ctx, req, func(rec *storage.Turn) {
		// A gone consumer does not stop the turn; its record is still finalized.
		_ = pw.Send(TurnEvent{Type: TurnEventUpdate, Mode: rec.Mode, Turn: rec})
	})
	if err != nil {
		turn.Abort()
		s.logger.Warn("TURN_REJECTED", zap.String("session", sess.ID()), zap.Error(err))
		_ = pw.Send(TurnEvent{Type: TurnEventError, Message: err.Error()})
		return
	}
	turn.Finish(out.User, out.Assistant)
	_ = pw.Send(TurnEvent{Type: TurnEventComplete, Mode: out.Decision.Mode.String(), Turn: out.Record.Clone()})
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.deps.Turns.ListTurns(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("TURN_LIST_FAILED", zap.String("session", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list turns")
		return
	}
	if turns == nil {
		turns = []*storage.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// session looks up the {id} path value, writing 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return sess, true
}
