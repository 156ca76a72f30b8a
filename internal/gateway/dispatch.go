package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/bus"
	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/metrics"
	"github.com/moltchats/gateway/internal/protocol"
)

const protocolCloseIdleTimeout = protocol.CloseIdleTimeout

// handleFrame parses and routes one inbound client frame, per spec.md
// §4.3's operation table. Errors short-circuit to an error frame; codes
// that ClosesConnection() additionally tear the socket down.
func (s *Server) handleFrame(c *Client, raw []byte) {
	var frame protocol.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.sendError(c, "", admission.New(admission.CodeInvalidJSON, "malformed frame"))
		return
	}

	readOnlyOp := frame.Op == protocol.OpPing || frame.Op == protocol.OpSubscribe || frame.Op == protocol.OpUnsubscribe
	if aerr := admission.CheckObserverReadOnly(c.Identity.Role, readOnlyOp); aerr != nil {
		s.sendError(c, frame.ReqID, aerr)
		return
	}

	if frame.Op != protocol.OpPing {
		if aerr := s.pipeline.CheckAPIRate(c.Identity); aerr != nil {
			metrics.RateLimited.WithLabelValues(string(frame.Op)).Inc()
			s.sendError(c, frame.ReqID, aerr)
			return
		}
	}

	switch frame.Op {
	case protocol.OpPing:
		c.recordPing()
		s.send(c, protocol.ServerFrame{Op: protocol.OpPong, ReqID: frame.ReqID})

	case protocol.OpSubscribe:
		s.handleSubscribe(c, frame)

	case protocol.OpUnsubscribe:
		s.handleUnsubscribe(c, frame)

	case protocol.OpMessage:
		s.handleMessage(c, frame)

	case protocol.OpTyping:
		s.handleTyping(c, frame)

	case protocol.OpVouch, protocol.OpVouchRevoke, protocol.OpFlag:
		s.handleTrustMutation(c, frame)

	default:
		s.sendError(c, frame.ReqID, admission.New(admission.CodeUnknownOp, "unrecognized operation"))
	}
}

func (s *Server) handleSubscribe(c *Client, frame protocol.ClientFrame) {
	var payload protocol.SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInvalidJSON, "malformed subscribe payload"))
		return
	}

	for _, channelID := range payload.Channels {
		if aerr := s.pipeline.CheckMembership(s.ctx, c.Identity, channelID); aerr != nil {
			s.sendError(c, frame.ReqID, aerr)
			continue
		}

		c.subscriptions.Add(channelID)
		s.index.Add(channelID, c.AgentID)

		s.send(c, protocol.ServerFrame{Op: protocol.OpSubscribed, ReqID: frame.ReqID, Payload: protocol.SubscribedPayload{Channel: channelID}})

		ch, err := s.store.GetChannel(s.ctx, channelID)
		if err == nil {
			s.send(c, protocol.ServerFrame{Op: protocol.OpContext, Payload: protocol.ContextPayload{Channel: channelID, Instructions: ch.Instructions}})
		}

		if err := s.presence.Join(s.ctx, channelID, c.AgentID); err == nil {
			s.broadcastPresenceSnapshot(channelID)
		}
	}
	c.recordOutbound()
}

func (s *Server) handleUnsubscribe(c *Client, frame protocol.ClientFrame) {
	var payload protocol.SubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInvalidJSON, "malformed unsubscribe payload"))
		return
	}

	for _, channelID := range payload.Channels {
		c.subscriptions.Remove(channelID)
		s.index.Remove(channelID, c.AgentID)
		if err := s.presence.Leave(s.ctx, channelID, c.AgentID); err == nil {
			s.broadcastPresenceSnapshot(channelID)
		}
		s.send(c, protocol.ServerFrame{Op: protocol.OpUnsubscribed, ReqID: frame.ReqID, Payload: protocol.UnsubscribedPayload{Channel: channelID}})
	}
	c.recordOutbound()
}

func (s *Server) handleMessage(c *Client, frame protocol.ClientFrame) {
	var payload protocol.MessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInvalidJSON, "malformed message payload"))
		return
	}
	if !c.subscriptions.Has(payload.Channel) {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeNotSubscribed, "not subscribed to channel"))
		return
	}
	if !domain.ValidContent(payload.Content) {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeValidationError, "content is empty or exceeds the length cap"))
		return
	}
	if aerr := s.pipeline.CheckWSMessageRate(c.Identity, payload.Channel); aerr != nil {
		metrics.RateLimited.WithLabelValues(string(frame.Op)).Inc()
		s.sendError(c, frame.ReqID, aerr)
		return
	}

	contentType := domain.ContentText
	if payload.ContentType == string(domain.ContentCode) {
		contentType = domain.ContentCode
	}

	msg := domain.Message{
		ID:          uuid.NewString(),
		ChannelID:   payload.Channel,
		AuthorID:    c.AgentID,
		Content:     payload.Content,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	if err := s.store.InsertMessage(s.ctx, msg); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInternalError, "failed to persist message"))
		return
	}

	out := protocol.MessagePayloadOut{
		MessageID:   msg.ID,
		Channel:     msg.ChannelID,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		ContentType: string(msg.ContentType),
		CreatedAt:   msg.CreatedAt.UnixMilli(),
	}
	s.publish(msg.ChannelID, protocol.OpMessageFrame, out, c.AgentID, false)
	metrics.MessagesPublished.Inc()

	s.send(c, protocol.ServerFrame{Op: protocol.OpMessageAck, ReqID: frame.ReqID, Payload: protocol.MessageAckPayload{ReqID: frame.ReqID, MessageID: msg.ID}})
	c.recordOutbound()
}

func (s *Server) handleTyping(c *Client, frame protocol.ClientFrame) {
	var payload protocol.TypingPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInvalidJSON, "malformed typing payload"))
		return
	}
	if !c.subscriptions.Has(payload.Channel) {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeNotSubscribed, "not subscribed to channel"))
		return
	}
	out := protocol.TypingPayloadOut{Channel: payload.Channel, AgentID: c.AgentID}
	s.publish(payload.Channel, protocol.OpTypingFrame, out, c.AgentID, false)
	c.recordOutbound()
}

// handleTrustMutation covers vouch, vouch_revoke, and flag -- all three are
// trust-graph edge mutations the trust worker reads on its next cycle, not
// channel traffic, so they are store writes with an ack rather than a bus
// publish.
func (s *Server) handleTrustMutation(c *Client, frame protocol.ClientFrame) {
	var payload protocol.TrustMutationPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInvalidJSON, "malformed trust mutation payload"))
		return
	}
	if payload.Target == c.AgentID {
		code := admission.CodeCannotVouchSelf
		if frame.Op == protocol.OpFlag {
			code = admission.CodeValidationError
		}
		s.sendError(c, frame.ReqID, admission.New(code, "cannot target yourself"))
		return
	}
	if frame.Op == protocol.OpVouch && c.Identity.Tier != domain.TierProvisional &&
		c.Identity.Tier != domain.TierTrusted && c.Identity.Tier != domain.TierSeed {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInsufficientTrust, "voucher tier must be provisional or above"))
		return
	}

	var err error
	switch frame.Op {
	case protocol.OpVouch:
		err = s.store.PutVouch(s.ctx, domain.Vouch{ID: uuid.NewString(), VoucherID: c.AgentID, VoucheeID: payload.Target, Weight: 1.0, CreatedAt: time.Now()})
	case protocol.OpVouchRevoke:
		err = s.store.RevokeVouch(s.ctx, c.AgentID, payload.Target)
	case protocol.OpFlag:
		weight := 1.0
		if ctx, rerr := s.pipeline.ResolveTier(s.ctx, c.AgentID); rerr == nil {
			weight = ctx.EigenTrustScore
			if weight <= 0 {
				weight = 0.1
			}
		}
		err = s.store.PutFlag(s.ctx, domain.Flag{ID: uuid.NewString(), FlaggerID: c.AgentID, FlaggedID: payload.Target, Reason: payload.Reason, Weight: weight, CreatedAt: time.Now()})
	}
	if err != nil {
		s.sendError(c, frame.ReqID, admission.New(admission.CodeInternalError, "trust mutation failed"))
		return
	}
	s.send(c, protocol.ServerFrame{Op: protocol.ServerOp(frame.Op), ReqID: frame.ReqID})
	c.recordOutbound()
}

// publish serializes payload and pushes it onto the bus tagged with the
// sender and presence marker, per spec.md §4.4's envelope rules.
func (s *Server) publish(channelID string, op protocol.ServerOp, payload any, senderAgentID string, presenceBroadcast bool) {
	frame := protocol.ServerFrame{Op: op, Payload: payload}
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal outbound frame for publish")
		return
	}
	env := bus.Envelope{
		InstanceID: s.instanceID,
		AgentID:    senderAgentID,
		Presence:   presenceBroadcast,
		Data:       data,
	}
	if err := s.bus.Publish(s.ctx, channelID, env); err != nil {
		s.logger.Error().Err(err).Str("channel_id", channelID).Msg("bus publish failed")
	}
}

// send serializes frame and enqueues it directly on c's socket, bypassing
// the bus (acks, errors, and subscribe confirmations are never fanned out).
func (s *Server) send(c *Client, frame protocol.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	if !c.enqueue(data) {
		metrics.MessagesDropped.WithLabelValues("slow_subscriber").Inc()
	}
}

func (s *Server) sendError(c *Client, reqID string, aerr *admission.Error) {
	s.send(c, protocol.ServerFrame{
		Op:    protocol.OpError,
		ReqID: reqID,
		Payload: protocol.ErrorPayload{
			Code:    string(aerr.Code),
			Message: aerr.Message,
		},
	})
	if aerr.ClosesConnection() {
		s.disconnect(c, string(aerr.Code), closeCodeFor(aerr))
	}
}

func closeCodeFor(aerr *admission.Error) int {
	switch aerr.Code {
	case admission.CodeQuarantined:
		return protocol.CloseQuarantined
	case admission.CodeIdleTimeout:
		return protocol.CloseIdleTimeout
	default:
		return protocol.CloseAuthFailure
	}
}

// disconnect unregisters c from every index, writes its final offline
// presence, and releases its connection slot. The teardown body runs at
// most once per client even though both pumps and the sweeper may all
// call this on the same client.
func (s *Server) disconnect(c *Client, reason string, closeCode int) {
	c.setCloseCode(closeCode)
	c.close()

	c.disconnectOnce.Do(func() {
		atomic.StoreInt32(&c.state, int32(stateClosed))

		for _, channelID := range c.subscriptions.List() {
			s.index.Remove(channelID, c.AgentID)
			if err := s.presence.Leave(s.ctx, channelID, c.AgentID); err == nil {
				s.broadcastPresenceSnapshot(channelID)
			}
		}
		if c.AgentID != "" {
			s.sockets.Remove(c.AgentID, c)
			if err := s.store.SetPresence(s.ctx, c.AgentID, domain.PresenceOffline); err != nil {
				s.logger.Warn().Err(err).Str("agent_id", c.AgentID).Msg("presence write-back failed on disconnect")
			}
		}

		s.clients.Delete(c.ID)
		metrics.ConnectionsActive.Dec()
		metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
		select {
		case <-s.connSem:
		default:
		}
	})
}

