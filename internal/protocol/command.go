package protocol

// CommandResult is the agent API view of one executed command.
type CommandResult struct {
	ID            string `json:"id"`
	CommandName   string `json:"command_name"`
	CommandStatus string `json:"command_status"`
	CommandError  any    `json:"command_error"`
	CommandResult any    `json:"command_result"`
}

type CommandList struct {
	Commands []CommandResult `json:"commands"`
}

// RunCommandRequest is the body of POST /<uuid>/v1/commands/.
type RunCommandRequest struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// RESTError is the serialized shape of command and API errors.
type RESTError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// HTTPError is the body returned for routing-level failures.
type HTTPError struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
}

type APIVersionDoc struct {
	ID    string `json:"id"`
	Links []Link `json:"links"`
}

type AgentAPIRoot struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Versions       []APIVersionDoc `json:"versions"`
	DefaultVersion APIVersionDoc   `json:"default_version"`
}

type MediaType struct {
	Base string `json:"base"`
	Type string `json:"type"`
}

type AgentAPIV1 struct {
	ID         string      `json:"id"`
	Links      []Link      `json:"links"`
	Commands   []Link      `json:"commands"`
	Status     []Link      `json:"status"`
	MediaTypes []MediaType `json:"media_types"`
}
