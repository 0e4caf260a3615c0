package protocol

import "strings"

const (
	CommandStatusRunning   = "RUNNING"
	CommandStatusSucceeded = "SUCCEEDED"
	CommandStatusFailed    = "FAILED"
)

func NormalizeCommandStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func IsRunningCommandStatus(status string) bool {
	return NormalizeCommandStatus(status) == CommandStatusRunning
}

func IsTerminalCommandStatus(status string) bool {
	switch NormalizeCommandStatus(status) {
	case CommandStatusSucceeded, CommandStatusFailed:
		return true
	default:
		return false
	}
}
