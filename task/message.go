package task

// managerMessage is the closed set of lifecycle messages consumed by the
// Manager's control loop. Workers never touch scheduler state directly;
// everything funnels through this type.
type managerMessage interface {
	isManagerMessage()
}

type enqueueMsg struct {
	task *Task
}

type startedMsg struct {
	id  string
	pid int
}

type completedMsg struct {
	id string
}

type failedMsg struct {
	id  string
	err error
}

type snapshotMsg struct {
	reply chan Snapshot
}

func (enqueueMsg) isManagerMessage()   {}
func (startedMsg) isManagerMessage()   {}
func (completedMsg) isManagerMessage() {}
func (failedMsg) isManagerMessage()    {}
func (snapshotMsg) isManagerMessage()  {}
