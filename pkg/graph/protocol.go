package graph

// Compatible reports whether sink may be linked to source: the modes must be
// Sink and Source, and the sink key must be 0 or equal to the source key.
func Compatible(sink, source *Socket) bool {
	if sink == nil || source == nil {
		return false
	}
	if sink.mode != ModeSink || source.mode != ModeSource {
		return false
	}
	return sink.key == 0 || sink.key == source.key
}

// Connect links sink to source. An existing upstream on sink is fully
// disconnected first, so a Sink never has more than one Source. Rejected
// attempts leave both sockets untouched and return false.
func Connect(sink, source *Socket) bool {
	if sink == nil || source == nil {
		return false
	}
	if source.mode != ModeSource || sink.mode != ModeSink {
		sink.logger().Debug("connect rejected: mode mismatch",
			"sink", sink.String(), "source", source.String())
		return false
	}
	if sink.key != 0 && sink.key != source.key {
		sink.logger().Debug("connect rejected: key mismatch",
			"sink", sink.String(), "sink_key", sink.key,
			"source", source.String(), "source_key", source.key)
		return false
	}
	if sink.destroyed || source.destroyed {
		return false
	}

	disconnect(sink)

	sink.upstream = source
	sink.links = []Subscription{
		source.Subscribe(EventOutgoing, func(ev SocketEvent) {
			sink.Write(ev.Payload)
		}),
		source.Subscribe(EventDisconnected, func(SocketEvent) {
			disconnect(sink)
		}),
		source.Subscribe(EventKeyChanged, func(SocketEvent) {
			if sink.key != 0 && sink.key != source.key {
				disconnect(sink)
			}
		}),
		source.Subscribe(EventDestroyed, func(SocketEvent) {
			disconnect(sink)
		}),
	}

	sink.emit(SocketEvent{Kind: EventConnected, Peer: source})
	source.emit(SocketEvent{Kind: EventConnected, Peer: sink})
	return true
}

// disconnect drops the upstream of sink. The subscriptions on the source are
// cancelled and the upstream reference cleared before observers hear about
// it, so a handler that reconnects the sink sees a clean socket.
func disconnect(sink *Socket) {
	prev := sink.upstream
	if prev == nil {
		return
	}
	for _, l := range sink.links {
		l.Cancel()
	}
	sink.links = nil
	sink.upstream = nil
	sink.emit(SocketEvent{Kind: EventDisconnected, Peer: prev})
}
