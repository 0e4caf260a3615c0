package ironic

import "errors"

var (
	ErrLookupFailed        = errors.New("could not look up node info")
	ErrHeartbeat           = errors.New("error heartbeating to agent API")
	ErrHeartbeatConflict   = errors.New("conflict heartbeating to agent API")
	ErrHeartbeatNotFound   = errors.New("node not found heartbeating to agent API")
	ErrHeartbeatConnection = errors.New("error attempting to heartbeat, possible transitory network failure")
	ErrNoControllerFound   = errors.New("no ironic API found via mDNS")
)
