package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzyreal/fakeipa/internal/agent"
	"github.com/izzyreal/fakeipa/internal/command"
	"github.com/izzyreal/fakeipa/internal/protocol"
)

func TestNotificationHandler(t *testing.T) {
	t.Parallel()
	fleet := &fakeFleet{}
	h := newTestServer(t, fleet)

	rec := doRequest(t, h, http.MethodPut, "/", `{"uuid":"sys-1","name":"fake1","boot_device":"Pxe",
		"nics":[{"mac":"52:54:00:00:00:01"}],"pending_power":{"power_state":"On","apply_time":1720787353}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, fleet.notifications, 1)
	got := fleet.notifications[0]
	assert.Equal(t, "sys-1", got.UUID)
	require.NotNil(t, got.PendingPower)
	assert.Equal(t, protocol.PowerStateOn, got.PendingPower.PowerState)
	assert.Equal(t, "52:54:00:00:00:01", got.PrimaryMAC())

	rec = doRequest(t, h, http.MethodPut, "/", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var httpErr protocol.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &httpErr))
	assert.Equal(t, 400, httpErr.Code)
	assert.Equal(t, "Bad Request", httpErr.Name)
}

func TestAPIRootAndV1(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeFleet{})

	rec := doRequest(t, h, http.MethodGet, "http://agent.example:9999/node-1/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var root protocol.AgentAPIRoot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	assert.Equal(t, "OpenStack Ironic Fake Python Agent API", root.Name)
	require.Len(t, root.Versions, 1)
	assert.Equal(t, "v1", root.DefaultVersion.ID)
	assert.Equal(t, protocol.Link{Href: "http://agent.example:9999/v1", Rel: "self"}, root.DefaultVersion.Links[0])
	assert.Equal(t, "text/html", root.DefaultVersion.Links[1].Type)

	rec = doRequest(t, h, http.MethodGet, "http://agent.example:9999/node-1/v1/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v1 protocol.AgentAPIV1
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v1))
	assert.Equal(t, []protocol.Link{
		{Href: "http://agent.example:9999/v1/commands", Rel: "self"},
		{Href: "http://agent.example:9999/commands", Rel: "bookmark"},
	}, v1.Commands)
	assert.Equal(t, "application/vnd.openstack.ironic-python-agent.v1+json", v1.MediaTypes[0].Type)
}

func TestListAndGetCommands(t *testing.T) {
	t.Parallel()
	result := command.NewSyncResult("clean.get_clean_steps", command.Params{}, map[string]any{"clean_steps": map[string]any{}})
	fleet := &fakeFleet{results: []*command.Result{result}}
	h := newTestServer(t, fleet)

	rec := doRequest(t, h, http.MethodGet, "/node-1/v1/commands/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list["commands"], 1)
	cmd := list["commands"][0]
	assert.Equal(t, result.ID(), cmd["id"])
	assert.Equal(t, "clean.get_clean_steps", cmd["command_name"])
	assert.Equal(t, "SUCCEEDED", cmd["command_status"])
	assert.Contains(t, cmd, "command_error")
	assert.Nil(t, cmd["command_error"])

	rec = doRequest(t, h, http.MethodGet, "/node-1/v1/commands/"+result.ID()+"?wait=True", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fleet.getWait)

	rec = doRequest(t, h, http.MethodGet, "/node-1/v1/commands/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var restErr protocol.RESTError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restErr))
	assert.Equal(t, "RequestedObjectNotFoundError", restErr.Type)
}

func TestRunCommandHandler(t *testing.T) {
	t.Parallel()
	fleet := &fakeFleet{}
	h := newTestServer(t, fleet)

	rec := doRequest(t, h, http.MethodPost, "/node-1/v1/commands/?wait=true&agent_token=tok",
		`{"name":"standby.get_partition_uuids","params":{"a":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fleet.runs, 1)
	assert.Equal(t, runCall{
		node: "node-1", name: "standby.get_partition_uuids",
		params: command.Params{"a": float64(1)}, token: "tok", wait: true,
	}, fleet.runs[0])

	var view protocol.CommandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, map[string]any{"result": "done"}, view.CommandResult)

	for _, body := range []string{``, `{}`, `{"name":"x"}`, `{"params":{}}`, `{"name":"x","params":[1]}`, `{"name":"x","params":null}`} {
		rec := doRequest(t, h, http.MethodPost, "/node-1/v1/commands/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Len(t, fleet.runs, 1)
}

func TestRunCommandErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		status int
		field  string
		want   any
	}{
		{name: "busy", err: command.AgentIsBusyError("image.install_bootloader"), status: http.StatusConflict, field: "type", want: "AgentIsBusy"},
		{name: "invalid", err: command.InvalidCommandError("Unknown command: x.y"), status: http.StatusBadRequest, field: "type", want: "InvalidCommandError"},
		{name: "unauthorized", err: agent.ErrUnauthorized, status: http.StatusUnauthorized, field: "description", want: "Token invalid."},
		{name: "unknown node", err: fmt.Errorf("%w: node-9", agent.ErrAgentNotFound), status: http.StatusNotFound, field: "name", want: "Not Found"},
		{name: "other", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, field: "code", want: float64(500)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, &fakeFleet{err: tc.err})
			rec := doRequest(t, h, http.MethodPost, "/node-1/v1/commands/", `{"name":"a.b","params":{}}`)
			assert.Equal(t, tc.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body[tc.field])
		})
	}
}

func TestRouterFallbacksAreJSON(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeFleet{})

	rec := doRequest(t, h, http.MethodGet, "/node-1/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = doRequest(t, h, http.MethodDelete, "/node-1/v1/commands/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeFleet{})
	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["agents"])
	assert.Equal(t, float64(2), body["heartbeat_queue"])
	assert.Equal(t, []any{"sys-1"}, body["pending_removal"])
}
