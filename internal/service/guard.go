package service

import "sync"

// Guard allows one send per session at a time across independent requests.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Acquire marks sessionID busy. The returned release must be called when the
// send finishes.
func (g *Guard) Acquire(sessionID string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[sessionID]; busy {
		return nil, ErrSendInFlight
	}
	g.inFlight[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, sessionID)
			g.mu.Unlock()
		})
	}, nil
}
