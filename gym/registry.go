package gym

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/taxi"
)

var (
	ErrUnknownEnv      = errors.New("unknown environment id")
	ErrUnknownInstance = errors.New("unknown instance id")
	ErrSeedUnsupported = errors.New("environment cannot be reseeded")
)

// Seeder is implemented by environments that can be reseeded on reset
type Seeder interface {
	Seed(seed uint64)
}

// Factory creates a new environment instance, seed 0 means unseeded
type Factory func(seed uint64) rl.Environment

// Registry maps environment ids to factories and holds the live instances
type Registry struct {
	lock      *sync.Mutex
	factories map[string]Factory
	instances map[string]*instance
	nextID    int
}

type instance struct {
	envID string
	env   rl.Environment
	// serialises calls on the same instance
	lock *sync.Mutex
}

// NewRegistry with the built-in environments registered
func NewRegistry() *Registry {
	r := &Registry{
		lock:      new(sync.Mutex),
		factories: make(map[string]Factory),
		instances: make(map[string]*instance),
	}
	r.Register("Taxi-v3", func(seed uint64) rl.Environment {
		return taxi.NewEnvironmentWithTimeLimit(seed, 200)
	})
	r.Register("Taxi-v3-unlimited", func(seed uint64) rl.Environment {
		return taxi.NewEnvironment(seed)
	})
	return r
}

func (r *Registry) Register(envID string, f Factory) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.factories[envID] = f
}

// EnvIDs returns the registered environment ids, sorted
func (r *Registry) EnvIDs() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create a new instance of the environment and return its instance id
func (r *Registry) Create(envID string, seed uint64) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	f, ok := r.factories[envID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEnv, envID)
	}
	r.nextID += 1
	id := strconv.FormatInt(int64(r.nextID), 36)
	id = fmt.Sprintf("%s-%s", envID, id)
	r.instances[id] = &instance{
		envID: envID,
		env:   f(seed),
		lock:  new(sync.Mutex),
	}
	return id, nil
}

func (r *Registry) get(id string) (*instance, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	i, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	return i, nil
}

// Instances returns instance id to environment id
func (r *Registry) Instances() map[string]string {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make(map[string]string, len(r.instances))
	for id, i := range r.instances {
		out[id] = i.envID
	}
	return out
}

func (r *Registry) Close(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.instances[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	delete(r.instances, id)
	return nil
}
