package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/navbridge/extension/internal/bridge"
	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/pkg/core"
)

const maxBodySize = 4 << 20

type errorBody struct {
	Error string `json:"error"`
}

// frame is one method call on the channel.
type frame struct {
	ID        json.RawMessage `json:"id"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// channel answers method frames in arrival order.
func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "channel", func(c *conn) {
		for {
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if isUnexpectedClose(err) {
					c.log.Warn().Err(err).Msg("channel closed unexpectedly")
				}
				return
			}

			reply, err := s.answer(r, data)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to encode reply")
				continue
			}
			if !c.enqueue(reply) {
				return
			}
		}
	})
}

// answer runs one frame and encodes the reply with the frame's id.
func (s *Server) answer(r *http.Request, data []byte) ([]byte, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Method == "" {
		details := "frame must be an object with a method"
		return json.Marshal(map[string]any{
			"id":    f.ID,
			"error": &bridge.Error{Code: bridge.CodeInvalidArguments, Message: "Invalid arguments", Details: &details},
		})
	}

	outcome := s.deps.Bridge.Call(r.Context(), f.Method, f.Arguments)
	body, err := json.Marshal(outcome)
	if err != nil {
		return nil, err
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if len(f.ID) > 0 {
		reply["id"] = f.ID
	} else {
		reply["id"] = json.RawMessage("null")
	}
	return json.Marshal(reply)
}

// stream forwards every event of a category to the client. The
// subscription lives as long as the connection.
func (s *Server) stream(category events.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.deps.Hub.Stream(category)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}

		s.serveWS(w, r, string(category), func(c *conn) {
			sub := st.Subscribe(s.deps.Buffer)
			defer sub.Close()

			// Reads only serve control frames and detect the close.
			go func() {
				for {
					if _, _, err := c.ws.NextReader(); err != nil {
						c.close()
						return
					}
				}
			}()

			for {
				select {
				case e, ok := <-sub.C:
					if !ok {
						return
					}
					payload, err := e.Payload()
					if err != nil {
						c.log.Error().Err(err).Str("type", e.Type).Msg("failed to encode event")
						continue
					}
					if !c.enqueue(payload) {
						return
					}
				case <-c.Done():
					return
				}
			}
		})
	}
}

// callMethod runs a method with the request body as its arguments.
func (s *Server) callMethod(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "method")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}
	var args json.RawMessage
	if len(body) > 0 {
		args = body
	}

	outcome := s.deps.Bridge.Call(r.Context(), name, args)
	writeJSON(w, outcomeStatus(outcome), outcome)
}

func outcomeStatus(o bridge.Outcome) int {
	switch {
	case o.NotImplemented:
		return http.StatusNotImplemented
	case o.Err == nil:
		return http.StatusOK
	case o.Err.Code == bridge.CodeInvalidArguments:
		return http.StatusBadRequest
	case o.Err.Code == bridge.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listMarkers(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Markers == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "markers are not available"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Markers.Markers())
}

func (s *Server) listVisibleMarkers(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Markers == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "markers are not available"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Markers.Visible())
}

func (s *Server) queryJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "journal backend cannot be queried"})
		return
	}

	q := core.JournalQuery{Category: r.URL.Query().Get("category")}
	switch q.Category {
	case "", core.CategoryMarkerTap, core.CategoryNavigation, core.CategoryScene:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown category: " + q.Category})
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}

	entries, err := s.deps.Journal.Query(q)
	if err != nil {
		s.log.Error().Err(err).Msg("journal query failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "journal query failed"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Status == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "status monitor is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Status.Last())
}
