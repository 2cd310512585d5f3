package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camgate/internal/camera"
	"github.com/nerrad567/camgate/internal/upstream"
)

// toggleRequest is the body of the motion and notification toggles.
// A missing "enabled" field means true.
type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (t toggleRequest) enabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// snapshotResponse is the body of a successful snapshot.
type snapshotResponse struct {
	Status    string  `json:"status"`
	Thumbnail *string `json:"thumbnail"`
}

// motionResponse is the body of a successful motion toggle.
type motionResponse struct {
	Status        string `json:"status"`
	MotionEnabled bool   `json:"motion_enabled"`
}

// notificationsResponse is the body of a successful notification toggle.
type notificationsResponse struct {
	Status               string `json:"status"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

// cameraName returns the {name} URL parameter, unescaped.
func cameraName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// decodeToggle reads a toggle body. An empty body is accepted.
func decodeToggle(r *http.Request) (toggleRequest, error) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// handleListCameras returns the normalized view of every camera, in the
// order the service reports them.
func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	views, err := s.gateway.Cameras(r.Context(), entryFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	s.setArmed(w, r, true)
}

func (s *Server) handleDisarm(w http.ResponseWriter, r *http.Request) {
	s.setArmed(w, r, false)
}

func (s *Server) setArmed(w http.ResponseWriter, r *http.Request, armed bool) {
	if err := s.gateway.Arm(r.Context(), entryFromContext(r.Context()), cameraName(r), armed); err != nil {
		writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// handleSnapshot captures a new picture and returns the refreshed thumbnail.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	thumb, err := s.gateway.Snapshot(r.Context(), entryFromContext(r.Context()), cameraName(r))
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Status: "success", Thumbnail: thumb})
}

func (s *Server) handleSetMotion(w http.ResponseWriter, r *http.Request) {
	req, err := decodeToggle(r)
	if err != nil {
		s.events.Append("Motion toggle error: invalid request body")
		writeBadRequest(w, "invalid JSON body")
		return
	}

	enabled := req.enabled()
	if err := s.gateway.SetMotion(r.Context(), entryFromContext(r.Context()), cameraName(r), enabled); err != nil {
		writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, motionResponse{Status: "success", MotionEnabled: enabled})
}

func (s *Server) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	req, err := decodeToggle(r)
	if err != nil {
		s.events.Append("Notification toggle error: invalid request body")
		writeBadRequest(w, "invalid JSON body")
		return
	}

	enabled := req.enabled()
	err = s.gateway.SetNotifications(r.Context(), entryFromContext(r.Context()), cameraName(r), enabled)
	switch {
	case errors.Is(err, upstream.ErrCapabilityUnsupported):
		writeServiceError(w, err, "Notification control not supported for this camera")
		return
	case err != nil:
		writeServiceError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Status: "success", NotificationsEnabled: enabled})
}

// handleThumbnail proxies the camera's latest thumbnail image.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	img, err := s.gateway.Thumbnail(r.Context(), entryFromContext(r.Context()), cameraName(r))
	if err != nil {
		writeServiceError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}

// handleListEvents returns recent motion events, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.gateway.Events(r.Context(), entryFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, "")
		return
	}
	if events == nil {
		events = []camera.MotionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
