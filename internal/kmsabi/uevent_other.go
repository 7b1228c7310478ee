//go:build !linux

package kmsabi

type UeventSocket struct{}

func OpenUeventSocket() (*UeventSocket, error) { return nil, errUnsupported }
func (s *UeventSocket) Fd() int                { return -1 }
func (s *UeventSocket) Close() error           { return nil }

type Uevent struct {
	Action string
	Vars   map[string]string
}

func (s *UeventSocket) Read() (Uevent, error) { return Uevent{}, errUnsupported }
func IsDRMCardEvent(ev Uevent) bool            { return false }
