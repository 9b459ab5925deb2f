package demo

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrGuildExists = errors.New("guild already exists")

type Guild struct {
	Name      string
	Color     string
	Public    bool
	Owner     string
	CreatedAt time.Time
}

// Registry is the in-memory guild list the demo screens operate on.
type Registry struct {
	mu      sync.RWMutex
	guilds  map[string]Guild
	version uint64
}

func NewRegistry(seed ...Guild) *Registry {
	r := &Registry{guilds: make(map[string]Guild, len(seed))}
	for _, g := range seed {
		r.guilds[strings.ToLower(g.Name)] = g
	}
	return r
}

func (r *Registry) Add(g Guild) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(g.Name)
	if _, ok := r.guilds[key]; ok {
		return ErrGuildExists
	}
	r.guilds[key] = g
	r.version++
	return nil
}

func (r *Registry) Get(name string) (Guild, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guilds[strings.ToLower(name)]
	return g, ok
}

func (r *Registry) List() []Guild {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Guild, 0, len(r.guilds))
	for _, g := range r.guilds {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Version changes whenever the guild list does; cached list forms key on it.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
