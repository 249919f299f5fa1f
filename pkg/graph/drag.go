package graph

// Drag is an in-progress wire gesture anchored on one socket. It is created
// by View.BeginDrag and finished with Drop or Cancel.
type Drag struct {
	anchor     *Socket
	redirected *Socket
	done       bool
}

// BeginDrag starts a gesture on s. Grabbing a connected Sink unplugs it and
// the gesture continues from the Source it was attached to. Disabled sockets
// cannot be dragged.
func (v *View) BeginDrag(s *Socket) (*Drag, bool) {
	if s == nil || s.destroyed {
		return nil, false
	}
	switch s.mode {
	case ModeSink:
		if up := s.upstream; up != nil {
			s.Disconnect()
			v.log.Debug("drag redirected", "sink", s.String(), "source", up.String())
			return &Drag{anchor: up, redirected: s}, true
		}
		return &Drag{anchor: s}, true
	case ModeSource:
		return &Drag{anchor: s}, true
	}
	return nil, false
}

// Anchor returns the socket the gesture is attached to.
func (d *Drag) Anchor() *Socket { return d.anchor }

// Redirected returns the Sink that was unplugged when the gesture started, or
// nil if the gesture began on a free socket.
func (d *Drag) Redirected() *Socket { return d.redirected }

// Active reports whether the gesture has not been dropped or cancelled.
func (d *Drag) Active() bool { return !d.done }

// Drop finishes the gesture on target, connecting the sink end to the source
// end. It returns false if the pair is not compatible; the gesture ends
// either way.
func (d *Drag) Drop(target *Socket) bool {
	if d.done {
		return false
	}
	d.done = true
	if target == nil || target == d.anchor {
		return false
	}
	if d.anchor.mode == ModeSource {
		return Connect(target, d.anchor)
	}
	return Connect(d.anchor, target)
}

// Cancel ends the gesture without connecting anything.
func (d *Drag) Cancel() {
	d.done = true
}
