package mqttclient

import (
	"time"
)

// handlePacket advances the session for one inbound packet. It runs on the
// reader goroutine of conn only.
func (c *Client) handlePacket(conn *connection, pkt Packet) {
	if _, ok := pkt.(*ConnackPacket); !ok && !conn.isEstablished() {
		c.logger.Warn("packet before CONNACK", LogFields{LogFieldPacketType: pkt.Type().String()})
		conn.close(ErrProtocolError)
		return
	}

	switch p := pkt.(type) {
	case *ConnackPacket:
		c.handleConnack(conn, p)
	case *SubackPacket:
		c.handleSuback(conn, p)
	case *PublishPacket:
		c.handlePublish(conn, p)
	case *UnsubackPacket:
		c.handleUnsuback(p)
	case *PubackPacket:
		c.handlePuback(p)
	case *PubrecPacket:
		c.handlePubrec(conn, p)
	case *PubrelPacket:
		c.handlePubrel(conn, p)
	case *PubcompPacket:
		c.handlePubcomp(p)
	case *PingrespPacket:
		conn.pingSent.Store(0)
	case *DisconnectPacket:
		c.handleDisconnect(conn, p)
	default:
		c.logger.Warn("unexpected packet", LogFields{LogFieldPacketType: pkt.Type().String()})
	}
}

func (c *Client) handleConnack(conn *connection, pkt *ConnackPacket) {
	if conn.isEstablished() {
		c.logger.Warn("duplicate CONNACK", nil)
		conn.close(ErrProtocolError)
		return
	}

	if pkt.ReasonCode != ReasonSuccess {
		err := newConnectRefused(pkt.ReasonCode)
		c.logger.Warn("connection refused", LogFields{LogFieldReasonCode: pkt.ReasonCode.String()})
		c.metrics.ConnectFailed("refused")
		conn.refused.Store(true)
		conn.connect.fail(err)
		conn.close(err)
		return
	}

	c.sessionMu.Lock()
	if c.State() == StateClosed || conn.closed() {
		c.sessionMu.Unlock()
		return
	}

	c.connMu.Lock()
	reconnect := c.everConnected
	c.everConnected = true
	c.connMu.Unlock()

	conn.establish()

	if reconnect && (c.opts.cleanSession || !pkt.SessionPresent) {
		c.queueResubscribe()
	}

	subscribes := c.subs.flush(func() {
		c.state.Store(int32(StateConnected))
	})
	c.sessionMu.Unlock()

	c.metrics.Connected()
	c.logger.Info("connected", LogFields{
		"session_present": pkt.SessionPresent,
		"reconnect":       reconnect,
	})

	conn.connect.succeed(&ConnectResult{
		SessionPresent: pkt.SessionPresent,
		ReasonCode:     pkt.ReasonCode,
		Reconnect:      reconnect,
	})

	for _, sub := range subscribes {
		if err := c.writeTo(conn, sub); err != nil {
			return
		}
	}

	if reconnect {
		c.onReconnected(conn)
	}

	c.emit(newConnectedEvent(pkt.SessionPresent, reconnect))
}

// queueResubscribe queues a SUBSCRIBE for every live filter. Caller holds
// sessionMu exclusively.
func (c *Client) queueResubscribe() {
	for _, f := range c.registry.filters() {
		if _, _, err := c.subs.add(f.Filter, f.QoS, nil, nil, c.ids.Allocate); err != nil {
			c.logger.Error("resubscribe failed", LogFields{
				LogFieldFilter: f.Filter,
				LogFieldError:  err.Error(),
			})
		}
	}
}

// onReconnected replays the pending state of a persistent session: every
// publish is resent (PUBLISH with DUP, or PUBREL) with its timer re-armed,
// and every pending UNSUBSCRIBE is sent again.
func (c *Client) onReconnected(conn *connection) {
	if c.opts.cleanSession {
		return
	}

	pubs := c.pubs.list()
	unsubs := c.unsubs.list()
	if len(pubs) == 0 && len(unsubs) == 0 {
		return
	}

	c.logger.Info("replaying session", LogFields{
		"publishes":    len(pubs),
		"unsubscribes": len(unsubs),
	})

	if c.limiter != nil {
		go c.replay(conn, pubs, unsubs)
		return
	}
	c.replay(conn, pubs, unsubs)
}

func (c *Client) replay(conn *connection, pubs []*pendingPublish, unsubs []*pendingUnsubscription) {
	for _, e := range pubs {
		if !c.replayWait(conn) {
			return
		}

		e.mu.Lock()
		if e.finished {
			e.mu.Unlock()
			continue
		}
		pkt := e.resendPacketLocked()
		err := c.writeTo(conn, pkt)
		if err == nil {
			c.metrics.Retransmitted(pkt.Type())
			c.armLocked(e)
		}
		e.mu.Unlock()

		if err != nil {
			return
		}
	}

	for _, p := range unsubs {
		if !c.replayWait(conn) {
			return
		}
		if err := c.writeTo(conn, p.packet()); err != nil {
			return
		}
	}
}

func (c *Client) replayWait(conn *connection) bool {
	if c.limiter == nil {
		return !conn.closed()
	}
	return c.limiter.Wait(conn.ctx) == nil
}

func (c *Client) handlePublish(conn *connection, pkt *PublishPacket) {
	received := time.Now()

	switch pkt.QoS {
	case QoS0:
		c.deliver(pkt, received)

	case QoS1:
		c.deliver(pkt, received)
		if pkt.PacketID != 0 {
			_ = c.writeTo(conn, &PubackPacket{PacketID: pkt.PacketID})
		}

	case QoS2:
		if pkt.PacketID == 0 {
			c.logger.Warn("dropping QoS 2 publish without packet id", LogFields{LogFieldTopic: pkt.Topic})
			return
		}
		if c.inbound.store(pkt) {
			c.logger.Warn("duplicate QoS 2 publish before PUBREL", LogFields{
				LogFieldTopic:    pkt.Topic,
				LogFieldPacketID: pkt.PacketID,
			})
		}
		_ = c.writeTo(conn, &PubrecPacket{PacketID: pkt.PacketID})

	default:
		c.logger.Warn("publish with invalid QoS", LogFields{LogFieldQoS: pkt.QoS})
		conn.close(ErrProtocolError)
	}
}

func (c *Client) deliver(pkt *PublishPacket, received time.Time) {
	n := c.registry.dispatch(pkt.Topic, pkt.Payload, received)
	c.metrics.Delivered(pkt.QoS, n)
	if n == 0 {
		c.logger.Debug("no subscription matched", LogFields{LogFieldTopic: pkt.Topic})
	}
}

func (c *Client) handlePuback(pkt *PubackPacket) {
	e, ok := c.pubs.complete(pkt.PacketID, phaseAwaitPuback)
	if !ok {
		c.logger.Debug("unmatched PUBACK", LogFields{LogFieldPacketID: pkt.PacketID})
		return
	}
	c.finishPublish(e, nil)
}

func (c *Client) handlePubrec(conn *connection, pkt *PubrecPacket) {
	if pkt.ReasonCode.IsError() {
		e, ok := c.pubs.abandon(pkt.PacketID)
		if !ok {
			return
		}
		err := newPublishError(e.topic, e.id, pkt.ReasonCode)
		c.logger.Warn("publish rejected", LogFields{
			LogFieldTopic:      e.topic,
			LogFieldPacketID:   e.id,
			LogFieldReasonCode: pkt.ReasonCode.String(),
		})
		c.finishPublish(e, err)
		return
	}

	e, ok := c.pubs.get(pkt.PacketID)
	if !ok {
		c.logger.Debug("unmatched PUBREC", LogFields{LogFieldPacketID: pkt.PacketID})
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return
	}

	switch e.phase {
	case phaseAwaitPubrec:
		e.packet = &PubrelPacket{PacketID: e.id}
		e.phase = phaseAwaitPubcomp
		e.retries = 0
		if err := c.writeTo(conn, e.packet); err != nil {
			return
		}
		c.armLocked(e)

	case phaseAwaitPubcomp:
		// PUBREC repeated: answer with PUBREL again, the timer keeps running.
		_ = c.writeTo(conn, e.packet)

	default:
		c.logger.Warn("PUBREC for QoS 1 publish", LogFields{LogFieldPacketID: e.id})
	}
}

func (c *Client) handlePubrel(conn *connection, pkt *PubrelPacket) {
	if msg, ok := c.inbound.release(pkt.PacketID); ok {
		c.deliver(msg, time.Now())
	}
	_ = c.writeTo(conn, &PubcompPacket{PacketID: pkt.PacketID})
}

func (c *Client) handlePubcomp(pkt *PubcompPacket) {
	e, ok := c.pubs.complete(pkt.PacketID, phaseAwaitPubcomp)
	if !ok {
		c.logger.Debug("unmatched PUBCOMP", LogFields{LogFieldPacketID: pkt.PacketID})
		return
	}
	c.finishPublish(e, nil)
}

func (c *Client) handleSuback(conn *connection, pkt *SubackPacket) {
	reason := ReasonUnspecifiedError
	if len(pkt.ReasonCodes) > 0 {
		reason = pkt.ReasonCodes[0]
	}

	promoted := 0
	live := false
	var granted byte
	entry, ok := c.subs.ack(pkt.PacketID, func(p *pendingSubscription) {
		if reason.IsError() {
			return
		}
		granted = grantedQoS(reason, p.qos)
		for _, sub := range p.subs {
			if sub.cancelled.Load() {
				continue
			}
			sub.granted = granted
			c.registry.register(sub)
			promoted++
		}
		c.registry.grant(p.filter, granted)
		live = c.registry.hasFilter(p.filter)
	})
	if !ok {
		c.logger.Debug("unmatched SUBACK", LogFields{LogFieldPacketID: pkt.PacketID})
		return
	}
	_ = c.ids.Release(pkt.PacketID)

	if reason.IsError() {
		err := newSubscribeError(entry.filter, reason)
		c.logger.Warn("subscription refused", LogFields{
			LogFieldFilter:     entry.filter,
			LogFieldReasonCode: reason.String(),
		})
		for _, done := range entry.allDones() {
			done.resolve(err)
		}
		return
	}

	c.metrics.SubscriptionsActive(c.registry.len())
	c.logger.Debug("subscribed", LogFields{
		LogFieldFilter: entry.filter,
		LogFieldQoS:    granted,
		"handlers":     promoted,
	})
	if granted < entry.qos {
		c.logger.Warn("subscription downgraded", LogFields{
			LogFieldFilter: entry.filter,
			LogFieldQoS:    granted,
			"requested":    entry.qos,
		})
	}

	for _, done := range entry.dones {
		done.resolve(nil)
	}

	// Every handler was removed while the SUBSCRIBE was in flight.
	if !live {
		for _, done := range entry.upgradeDones {
			done.resolve(nil)
		}
		c.unsubscribeOrphan(conn, entry.filter)
		return
	}

	if entry.upgrade > entry.qos {
		c.requestUpgrade(conn, entry.filter, entry.upgrade, entry.upgradeDones)
	}
}

// grantedQoS reads the QoS granted by a successful SUBACK return code.
func grantedQoS(reason ReasonCode, requested byte) byte {
	if reason <= ReasonGrantedQoS2 {
		return byte(reason)
	}
	return requested
}

// requestUpgrade subscribes to filter again at qos after a caller asked for
// more than the SUBSCRIBE already in flight carried.
func (c *Client) requestUpgrade(conn *connection, filter string, qos byte, dones []*completion) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if granted, ok := c.registry.maxQoS(filter); !ok || granted >= qos {
		for _, done := range dones {
			done.resolve(nil)
		}
		return
	}

	entry, _, err := c.subs.add(filter, qos, nil, nil, c.ids.Allocate)
	if err != nil {
		c.logger.Warn("subscription upgrade failed", LogFields{
			LogFieldFilter: filter,
			LogFieldError:  err.Error(),
		})
		for _, done := range dones {
			done.resolve(err)
		}
		return
	}
	if !c.subs.join(entry, dones) {
		for _, done := range dones {
			done.resolve(nil)
		}
		return
	}

	c.logger.Debug("upgrading subscription", LogFields{
		LogFieldFilter:   filter,
		LogFieldQoS:      qos,
		LogFieldPacketID: entry.id,
	})
	if c.State() == StateConnected {
		if pkt := c.subs.markSent(entry); pkt != nil {
			_ = c.writeTo(conn, pkt)
		}
	}
}

func (c *Client) unsubscribeOrphan(conn *connection, filter string) {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()

	if c.subs.pending(filter) || c.registry.hasFilter(filter) {
		return
	}

	id, err := c.ids.Allocate()
	if err != nil {
		c.logger.Warn("unsubscribe failed", LogFields{
			LogFieldFilter: filter,
			LogFieldError:  err.Error(),
		})
		return
	}
	p := c.unsubs.add(filter, id, newToken())
	_ = c.writeTo(conn, p.packet())
}

func (c *Client) handleUnsuback(pkt *UnsubackPacket) {
	p, ok := c.unsubs.ack(pkt.PacketID)
	if !ok {
		c.logger.Debug("unmatched UNSUBACK", LogFields{LogFieldPacketID: pkt.PacketID})
		return
	}
	_ = c.ids.Release(pkt.PacketID)
	p.token.complete(nil)
}

func (c *Client) handleDisconnect(conn *connection, pkt *DisconnectPacket) {
	c.logger.Warn("server disconnect", LogFields{LogFieldReasonCode: pkt.ReasonCode.String()})
	conn.close(newDisconnectError(pkt.ReasonCode, true))
}
