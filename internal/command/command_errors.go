package command

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/izzyreal/fakeipa/internal/protocol"
)

var (
	ErrInvalidCommand       = errors.New("invalid command")
	ErrInvalidCommandParams = errors.New("invalid command parameters")
	ErrObjectNotFound       = errors.New("requested object not found")
	ErrAgentIsBusy          = errors.New("agent is busy")
	ErrCommandExecution     = errors.New("command execution failed")
)

// Error is a command error that can be handed back to the controller as
// a REST error body.
type Error struct {
	Type    string
	Code    int
	Message string
	Details string
	kind    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

func (e *Error) Unwrap() error {
	return e.kind
}

func (e *Error) REST() protocol.RESTError {
	return protocol.RESTError{Type: e.Type, Code: e.Code, Message: e.Message, Details: e.Details}
}

func InvalidCommandError(details string) *Error {
	return &Error{
		Type:    "InvalidCommandError",
		Code:    http.StatusBadRequest,
		Message: "Invalid command",
		Details: details,
		kind:    ErrInvalidCommand,
	}
}

func InvalidCommandParamsError(details string) *Error {
	return &Error{
		Type:    "InvalidCommandParamsError",
		Code:    http.StatusBadRequest,
		Message: "Invalid command parameters",
		Details: details,
		kind:    ErrInvalidCommandParams,
	}
}

func NotFoundError(kind, id string) *Error {
	return &Error{
		Type:    "RequestedObjectNotFoundError",
		Code:    http.StatusNotFound,
		Message: "Requested object not found",
		Details: fmt.Sprintf("%s with id %s not found.", kind, id),
		kind:    ErrObjectNotFound,
	}
}

func AgentIsBusyError(running string) *Error {
	return &Error{
		Type:    "AgentIsBusy",
		Code:    http.StatusConflict,
		Message: "Agent is busy",
		Details: "executing command " + running,
		kind:    ErrAgentIsBusy,
	}
}

func CommandExecutionError(details string) *Error {
	return &Error{
		Type:    "CommandExecutionError",
		Code:    http.StatusInternalServerError,
		Message: "Command execution failed",
		Details: details,
		kind:    ErrCommandExecution,
	}
}

// IsClientError reports errors caused by malformed request content. These
// are returned to the caller instead of being recorded as failed results.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCommand) || errors.Is(err, ErrInvalidCommandParams)
}

// AsError returns err as a REST error, wrapping anything else as a command
// execution failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return CommandExecutionError(err.Error())
}
