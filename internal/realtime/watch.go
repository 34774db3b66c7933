package realtime

import "context"

// Stream describes a live view: which changes invalidate it, how to rebuild
// it, and where to send each rebuilt value.
type Stream[T any] struct {
	Entities []string
	// Match further narrows the events that trigger a reload. Optional.
	Match   func(Event) bool
	Load    func(ctx context.Context) (T, error)
	Emit    func(T)
	OnError func(error)
}

// Watch emits an initial snapshot of s and then a fresh one after every
// matching change. Events that arrive while a reload is pending are folded
// into a single reload. Watching stops when ctx ends or the returned cancel
// function is called.
func Watch[T any](ctx context.Context, b *Broker, s Stream[T]) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	sub := b.Subscribe(s.Entities...)

	go func() {
		defer sub.Close()

		s.reload(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.Events():
				if !ok {
					return
				}
				if s.Match != nil && !s.Match(e) {
					continue
				}
				if !drain(sub) {
					return
				}
				s.reload(ctx)
			}
		}
	}()

	return cancel
}

func (s Stream[T]) reload(ctx context.Context) {
	v, err := s.Load(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if s.OnError != nil {
			s.OnError(err)
		}
		return
	}
	s.Emit(v)
}

// drain discards queued events. It returns false if the subscription closed.
func drain(sub *Subscription) bool {
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
