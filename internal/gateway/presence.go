package gateway

import (
	"time"

	"github.com/moltchats/gateway/internal/logging"
	"github.com/moltchats/gateway/internal/protocol"
)

// broadcastPresenceSnapshot publishes channelID's full online set to the
// bus, tagged as a presence broadcast so the fan-out router never
// suppresses it for the agent who triggered it (spec.md §4.4).
func (s *Server) broadcastPresenceSnapshot(channelID string) {
	online, err := s.presence.Snapshot(s.ctx, channelID)
	if err != nil {
		s.logger.Warn().Err(err).Str("channel_id", channelID).Msg("presence snapshot failed")
		return
	}
	s.publish(channelID, protocol.OpPresence, protocol.PresencePayload{Channel: channelID, Online: online}, "", true)
}

// broadcastPresenceFor re-broadcasts presence for every channel c is
// subscribed to, used by the sweeper when c goes from online to idle.
func (s *Server) broadcastPresenceFor(c *Client) {
	for _, channelID := range c.subscriptions.List() {
		s.broadcastPresenceSnapshot(channelID)
	}
}

// runPresenceHeartbeat re-broadcasts every locally-subscribed channel's
// online set every 30 seconds, per spec.md §4.5, independent of whether
// any transition occurred.
func (s *Server) runPresenceHeartbeat() {
	defer s.wg.Done()
	defer logging.RecoverPanic(s.logger, "presence_heartbeat", nil)

	ticker := time.NewTicker(presenceTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, channelID := range s.index.Channels() {
				s.broadcastPresenceSnapshot(channelID)
			}
		}
	}
}
