// internal/pipeline/resilience/snapshot.go
package resilience

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "clientpulse:resilience:sources"

// snapshot is the persisted form of one source's resilience state.
type snapshot struct {
	Circuit CircuitState `json:"circuit"`
	Window  []time.Time  `json:"window"`
}

// SnapshotStore persists registry state across process restarts so an OPEN
// breaker is not forgotten on redeploy. Best-effort: callers never treat a
// store failure as fatal.
type SnapshotStore interface {
	Save(ctx context.Context, states map[string]json.RawMessage) error
	Load(ctx context.Context) (map[string]json.RawMessage, error)
}

// RedisSnapshotStore keeps one hash entry per source id.
type RedisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, states map[string]json.RawMessage) error {
	if len(states) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(states))
	for id, raw := range states {
		fields[id] = string(raw)
	}
	return s.client.HSet(ctx, snapshotKey, fields).Err()
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := s.client.HGetAll(ctx, snapshotKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for id, v := range raw {
		out[id] = json.RawMessage(v)
	}
	return out, nil
}

// Persist writes the registry's current state through the store.
func (r *Registry) Persist(ctx context.Context, store SnapshotStore) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	states := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		st := r.state(id)
		st.mu.Lock()
		snap := snapshot{Circuit: st.circuit, Window: append([]time.Time(nil), st.window...)}
		st.mu.Unlock()

		raw, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		states[id] = raw
	}
	return store.Save(ctx, states)
}

// Restore loads persisted state into the registry. Unknown source ids are
// restored too; Register later overlays their budgets. A stale in-flight
// probe flag is cleared since the probing process is gone.
func (r *Registry) Restore(ctx context.Context, store SnapshotStore) error {
	states, err := store.Load(ctx)
	if err != nil {
		return err
	}
	for id, raw := range states {
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			r.log.Warn("dropping unreadable resilience snapshot", map[string]interface{}{
				"source": id,
				"error":  err.Error(),
			})
			continue
		}
		snap.Circuit.ProbeInFlight = false

		st := r.state(id)
		st.mu.Lock()
		st.circuit = snap.Circuit
		st.window = snap.Window
		st.mu.Unlock()
	}
	return nil
}
