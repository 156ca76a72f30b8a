package gateway

import (
	"github.com/moltchats/gateway/internal/bus"
	"github.com/moltchats/gateway/internal/logging"
	"github.com/moltchats/gateway/internal/metrics"
)

// runFanout holds the gateway's one standing bus subscription (spec.md
// §4.4) and routes every delivered envelope to this instance's local
// subscribers of the envelope's channel, stripping the internal markers
// before the frame ever reaches a socket.
func (s *Server) runFanout() {
	defer s.wg.Done()
	defer logging.RecoverPanic(s.logger, "fanout", nil)

	sub, err := s.bus.SubscribeAll(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("bus SubscribeAll failed; fan-out router is not running")
		return
	}
	defer sub.Close()

	for env := range sub.Channel() {
		s.deliver(env)
	}
}

// deliver implements spec.md §4.4's delivery rules: look up channel X's
// local subscribers, write to every open socket of each, suppressing
// delivery to the sender's own agent id unless the envelope is a presence
// broadcast.
func (s *Server) deliver(env bus.Envelope) {
	agentIDs := s.index.Get(env.Topic)
	if len(agentIDs) == 0 {
		return
	}

	for _, agentID := range agentIDs {
		if !env.Presence && env.AgentID != "" && env.AgentID == agentID {
			metrics.MessagesDropped.WithLabelValues("echo_suppressed").Inc()
			continue
		}
		for _, c := range s.sockets.Get(agentID) {
			if c.enqueue([]byte(env.Data)) {
				metrics.MessagesFannedOut.Inc()
			} else {
				metrics.MessagesDropped.WithLabelValues("slow_subscriber").Inc()
			}
		}
	}
}
