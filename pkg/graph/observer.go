package graph

// Subscription is the handle returned by the Subscribe methods of Socket,
// Node and View. Cancel detaches the observer; it is safe to call more than
// once and on the zero value.
type Subscription struct {
	cancel func()
}

// Cancel removes the observer. After Cancel returns the observer is never
// invoked again, including by an emission that is already in progress.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type observer[E any] struct {
	fn     func(E)
	active bool
}

// observerList is an ordered list of callbacks for one event channel.
// Emission iterates over a snapshot so observers added during delivery miss
// the current event, and observers removed during delivery are skipped.
type observerList[E any] struct {
	obs []*observer[E]
}

func (l *observerList[E]) add(fn func(E)) Subscription {
	o := &observer[E]{fn: fn, active: true}
	l.obs = append(l.obs, o)
	return Subscription{cancel: func() { l.remove(o) }}
}

func (l *observerList[E]) remove(o *observer[E]) {
	if !o.active {
		return
	}
	o.active = false
	for i, cur := range l.obs {
		if cur == o {
			l.obs = append(l.obs[:i:i], l.obs[i+1:]...)
			return
		}
	}
}

func (l *observerList[E]) emit(e E) {
	if len(l.obs) == 0 {
		return
	}
	snapshot := make([]*observer[E], len(l.obs))
	copy(snapshot, l.obs)
	for _, o := range snapshot {
		if o.active {
			o.fn(e)
		}
	}
}

func (l *observerList[E]) len() int {
	return len(l.obs)
}

func (l *observerList[E]) clear() {
	for _, o := range l.obs {
		o.active = false
	}
	l.obs = nil
}
