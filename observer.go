package records

// signal is a synchronous, re-entrancy safe notification list. An emit that
// arrives while the same signal is already firing is dropped, which breaks
// cycles between records that point at each other.
type signal struct {
	nextID int
	subs   []subscription
	firing bool
}

type subscription struct {
	id int
	fn func()
}

// subscribe registers fn and returns a function that removes it. The cancel
// function is safe to call more than once.
func (s *signal) subscribe(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() { s.unsubscribe(id) }
}

func (s *signal) unsubscribe(id int) {
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *signal) emit() {
	if s.firing || len(s.subs) == 0 {
		return
	}
	s.firing = true
	defer func() { s.firing = false }()
	subs := append([]subscription(nil), s.subs...)
	for _, sub := range subs {
		sub.fn()
	}
}

func (s *signal) len() int { return len(s.subs) }

// dirtySource is anything a relationship can point at that announces its own
// mutations: a record (dirty flip) or a collection (membership change or a
// member's dirty flip).
type dirtySource interface {
	onDirty(fn func()) func()
}

// changeObserver turns declared field mutations into exactly one call of the
// owning record's handler. Relationship fields additionally follow their
// pointee's dirty signal.
type changeObserver struct {
	handler   func(name string)
	relations map[string]func()
	torn      bool
}

func newChangeObserver(handler func(name string)) *changeObserver {
	return &changeObserver{
		handler:   handler,
		relations: map[string]func(){},
	}
}

// notifyFieldChanged is the single entry point every field setter calls.
func (o *changeObserver) notifyFieldChanged(name string) {
	if o == nil || o.torn || o.handler == nil {
		return
	}
	o.handler(name)
}

// watch (re)binds the relationship field name to source. The previous
// pointee, if any, is released first.
func (o *changeObserver) watch(name string, source dirtySource) {
	if o == nil || o.torn {
		return
	}
	if cancel, ok := o.relations[name]; ok {
		cancel()
		delete(o.relations, name)
	}
	if source == nil {
		return
	}
	o.relations[name] = source.onDirty(func() {
		o.notifyFieldChanged(name)
	})
}

// teardown releases every relationship subscription. Notifications that
// arrive afterwards are ignored.
func (o *changeObserver) teardown() {
	if o == nil || o.torn {
		return
	}
	o.torn = true
	for name, cancel := range o.relations {
		cancel()
		delete(o.relations, name)
	}
}

// suspension brackets bulk field assignment. While held, the record is not
// ready and mutations never dirty it. Release is idempotent and always leaves
// the record ready.
type suspension struct {
	record   *Record
	released bool
}

func (r *Record) suspend() *suspension {
	r.state.ready = false
	r.suspended++
	return &suspension{record: r}
}

func (s *suspension) release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	r := s.record
	r.suspended--
	if r.suspended <= 0 {
		r.suspended = 0
		r.state.ready = true
	}
}

// populate runs fn inside a suspension. The record becomes ready on every
// exit path, including a panic inside fn.
func (r *Record) populate(fn func() error) error {
	s := r.suspend()
	defer s.release()
	return fn()
}
