package chat

import (
	"PPAdmin/logger"

	"go.uber.org/zap"
)

// Dispatcher delivers payloads to every live socket of a user or of every
// member of a room. Delivery is best effort: a failing socket is logged and
// skipped, and the caller learns only how many writes succeeded.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// EmitUser sends payload to each socket userID had when the call started.
func (d *Dispatcher) EmitUser(userID string, payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	delivered := 0
	for _, s := range d.reg.UserSockets(userID) {
		if err := s.Send(payload); err != nil {
			fanoutFailures.Inc()
			logger.Warn("[Fanout] send failed",
				zap.String("user_id", userID),
				zap.String("socket_id", s.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	fanoutDeliveries.Add(float64(delivered))
	return delivered
}

// EmitRoom calls EmitUser for each member subscribed when the call started
// and returns the summed deliveries.
func (d *Dispatcher) EmitRoom(roomID string, payload []byte) int {
	delivered := 0
	for _, userID := range d.reg.RoomMembers(roomID) {
		delivered += d.EmitUser(userID, payload)
	}
	return delivered
}

func (d *Dispatcher) EmitUserEvent(userID string, ev Outbound) int {
	payload, err := Encode(ev)
	if err != nil {
		logger.Error("[Fanout] encode", zap.String("event", ev.EventName()), zap.Error(err))
		return 0
	}
	return d.EmitUser(userID, payload)
}

func (d *Dispatcher) EmitRoomEvent(roomID string, ev Outbound) int {
	payload, err := Encode(ev)
	if err != nil {
		logger.Error("[Fanout] encode", zap.String("event", ev.EventName()), zap.Error(err))
		return 0
	}
	return d.EmitRoom(roomID, payload)
}
