package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/izzyreal/fakeipa/internal/agent"
	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/protocol"
	"github.com/izzyreal/fakeipa/internal/server/httpx"
)

const maxRequestBodyBytes = 1 << 20

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status": "ok",
		"agents": len(s.fleet.NodeUUIDs()),
	}
	if s.queue != nil {
		body["heartbeat_queue"] = s.queue.Len()
		body["pending_removal"] = s.queue.PendingRemoval()
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func (s *Server) notificationHandler(w http.ResponseWriter, r *http.Request) {
	var system protocol.System
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&system); err != nil {
		httpx.WriteHTTPError(w, http.StatusBadRequest, "invalid system JSON: "+err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{"system": system.Name, "system_uuid": system.UUID}).Info("received system update")
	s.fleet.HandleNotification(system)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiRootHandler(w http.ResponseWriter, r *http.Request) {
	root := requestRoot(r)
	httpx.WriteJSON(w, http.StatusOK, protocol.AgentAPIRoot{
		Name:           "OpenStack Ironic Fake Python Agent API",
		Description:    "Ironic Fake Python Agent is a fake provisioning agent for OpenStack Ironic",
		Versions:       []protocol.APIVersionDoc{versionDoc(root)},
		DefaultVersion: versionDoc(root),
	})
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	root := requestRoot(r)
	v := versionDoc(root)
	httpx.WriteJSON(w, http.StatusOK, protocol.AgentAPIV1{
		ID:    v.ID,
		Links: v.Links,
		Commands: []protocol.Link{
			makeLink(root, "self", "commands"),
			makeLink(root, "bookmark", "commands"),
		},
		Status: []protocol.Link{
			makeLink(root, "self", "status"),
			makeLink(root, "bookmark", "status"),
		},
		MediaTypes: []protocol.MediaType{{Base: "application/json", Type: agentMediaType}},
	})
}

func (s *Server) listCommandsHandler(w http.ResponseWriter, r *http.Request) {
	results, err := s.fleet.ListCommands(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	list := protocol.CommandList{Commands: make([]protocol.CommandResult, 0, len(results))}
	for _, res := range results {
		list.Commands = append(list.Commands, res.View())
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) getCommandHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.fleet.GetCommand(r.Context(), chi.URLParam(r, "uuid"), chi.URLParam(r, "id"), wantWait(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result.View())
}

func (s *Server) runCommandHandler(w http.ResponseWriter, r *http.Request) {
	var body protocol.RunCommandRequest
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&raw); err != nil {
		httpx.WriteHTTPError(w, http.StatusBadRequest, "Missing or invalid name or params")
		return
	}
	if err := decodeRunCommand(raw, &body); err != nil {
		httpx.WriteHTTPError(w, http.StatusBadRequest, "Missing or invalid name or params")
		return
	}

	token := r.URL.Query().Get("agent_token")
	result, err := s.fleet.RunCommand(r.Context(), chi.URLParam(r, "uuid"), body.Name, command.Params(body.Params), token, wantWait(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result.View())
}

// decodeRunCommand requires name and an object params.
func decodeRunCommand(raw map[string]json.RawMessage, out *protocol.RunCommandRequest) error {
	name, okName := raw["name"]
	params, okParams := raw["params"]
	if !okName || !okParams {
		return errors.New("missing name or params")
	}
	if err := json.Unmarshal(name, &out.Name); err != nil {
		return err
	}
	if err := json.Unmarshal(params, &out.Params); err != nil {
		return err
	}
	if out.Params == nil {
		return errors.New("params must be an object")
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var cmdErr *command.Error
	if errors.As(err, &cmdErr) {
		httpx.WriteRESTError(w, cmdErr.REST())
		return
	}
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		httpx.WriteHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agent.ErrUnauthorized):
		httpx.WriteHTTPError(w, http.StatusUnauthorized, "Token invalid.")
	default:
		s.log.WithError(err).Error("agent API request failed")
		httpx.WriteHTTPError(w, http.StatusInternalServerError, err.Error())
	}
}

func wantWait(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("wait"), "true")
}
