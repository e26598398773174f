package futures

import "context"

// WaitAny blocks until ctx is done or any of fs resolves, returning the
// index into fs of the winner. Already-resolved children are preferred in
// index order so that any(h, h) deterministically picks child 0, both on
// a live run and (since replay never calls this at all, see
// internal/state/combinator.go) conceptually on replay too.
func WaitAny(ctx context.Context, fs []Selectable) (winner int, ok bool) {
	for i, f := range fs {
		select {
		case <-f.Done():
			return i, true
		default:
		}
	}

	if len(fs) == 0 {
		<-ctx.Done()
		return -1, false
	}

	winCh := make(chan int, len(fs))
	for i, f := range fs {
		i, f := i, f
		go func() {
			select {
			case <-f.Done():
				select {
				case winCh <- i:
				default:
				}
			case <-ctx.Done():
			}
		}()
	}

	select {
	case i := <-winCh:
		return i, true
	case <-ctx.Done():
		return -1, false
	}
}

// WaitAll blocks until every one of fs resolves, or ctx fires early. order
// lists the indices into fs in the order they were observed resolved,
// which is what gets captured into the Combinator journal entry.
func WaitAll(ctx context.Context, fs []Selectable) (order []int, ok bool) {
	remaining := make(map[int]bool, len(fs))
	for i, f := range fs {
		select {
		case <-f.Done():
			order = append(order, i)
		default:
			remaining[i] = true
		}
	}

	if len(remaining) == 0 {
		return order, true
	}

	doneCh := make(chan int, len(remaining))
	for i := range remaining {
		i, f := i, fs[i]
		go func() {
			select {
			case <-f.Done():
				select {
				case doneCh <- i:
				default:
				}
			case <-ctx.Done():
			}
		}()
	}

	for len(remaining) > 0 {
		select {
		case i := <-doneCh:
			if remaining[i] {
				order = append(order, i)
				delete(remaining, i)
			}
		case <-ctx.Done():
			return order, false
		}
	}
	return order, true
}

// Selector consumes a fixed set of Selectables one at a time in resolution
// order, the building block behind Context.Selector -- useful when user
// code wants to react to whichever of several pending operations completes
// first without committing to the any()/all() journal semantics.
type Selector struct {
	ctx      context.Context
	pending  []Selectable
}

func NewSelector(ctx context.Context, children ...Selectable) *Selector {
	cp := make([]Selectable, len(children))
	copy(cp, children)
	return &Selector{ctx: ctx, pending: cp}
}

// Select blocks until one pending child resolves, removes it from the
// pending set, and returns it. ok is false if ctx fired or nothing is left
// to select.
func (s *Selector) Select() (Selectable, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	i, ok := WaitAny(s.ctx, s.pending)
	if !ok {
		return nil, false
	}
	won := s.pending[i]
	s.pending = append(s.pending[:i], s.pending[i+1:]...)
	return won, true
}

// Remaining reports how many children have not yet been selected.
func (s *Selector) Remaining() int { return len(s.pending) }
