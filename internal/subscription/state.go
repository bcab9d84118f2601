package subscription

import "fmt"

// State of a subscription handle. Only the handle's dispatch goroutine
// changes it.
type State int32

const (
	Disconnected State = iota
	Connecting
	AwaitingAck
	Subscribed
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingAck:
		return "awaiting-ack"
	case Subscribed:
		return "subscribed"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
