package pipeline

// State is a step of the sync state machine.
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StatePortObtained
	StateQBTSynced
	StateDockerSynced
	StateContainersRestarted
	StateNotified
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StatePortObtained:
		return "PORT_OBTAINED"
	case StateQBTSynced:
		return "QBT_SYNCED"
	case StateDockerSynced:
		return "DOCKER_SYNCED"
	case StateContainersRestarted:
		return "CONTAINERS_RESTARTED"
	case StateNotified:
		return "NOTIFIED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Process exit codes.
const (
	ExitOK          = 0
	ExitAuth        = 1
	ExitConfig      = 1
	ExitExtraction  = 2
	ExitQBittorrent = 3
	ExitDocker      = 4
	ExitLocked      = 5
	ExitInterrupted = 130
)
