package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

const defaultGraphTTL = 10 * time.Minute

// GraphCache is a read-through cache of decision graphs in front of a
// scenario.GraphStore. Redis failures fall through to the store.
type GraphCache struct {
	scenario.GraphStore
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewGraphCache wraps store. A zero ttl uses the default.
func NewGraphCache(client *redis.Client, store scenario.GraphStore, ttl time.Duration, log *logger.Logger) *GraphCache {
	if ttl <= 0 {
		ttl = defaultGraphTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GraphCache{
		GraphStore: store,
		client:     client,
		ttl:        ttl,
		log:        log.With("component", "cache.graph"),
	}
}

func (c *GraphCache) key(scenarioID string) string {
	return fmt.Sprintf("scenario:graph:%s", scenarioID)
}

func (c *GraphCache) LoadGraph(ctx context.Context, scenarioID string) (*scenario.Graph, error) {
	if g, ok := c.get(ctx, scenarioID); ok {
		return g, nil
	}
	g, err := c.GraphStore.LoadGraph(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, scenarioID, g)
	return g, nil
}

func (c *GraphCache) PutGraph(ctx context.Context, g *scenario.Graph) error {
	if err := c.GraphStore.PutGraph(ctx, g); err != nil {
		return err
	}
	c.Invalidate(ctx, g.Scenario().ID)
	return nil
}

func (c *GraphCache) SetScenarioAsset(ctx context.Context, scenarioID, kind, key string) error {
	if err := c.GraphStore.SetScenarioAsset(ctx, scenarioID, kind, key); err != nil {
		return err
	}
	c.Invalidate(ctx, scenarioID)
	return nil
}

// Invalidate drops the cached graph for scenarioID.
func (c *GraphCache) Invalidate(ctx context.Context, scenarioID string) {
	if err := c.client.Del(ctx, c.key(scenarioID)).Err(); err != nil {
		c.log.Warn("graph cache invalidate failed", "scenario_id", scenarioID, "error", err)
	}
}

func (c *GraphCache) get(ctx context.Context, scenarioID string) (*scenario.Graph, bool) {
	data, err := c.client.Get(ctx, c.key(scenarioID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("graph cache read failed, using store", "scenario_id", scenarioID, "error", err)
		return nil, false
	}
	var d scenario.GraphData
	if err := json.Unmarshal(data, &d); err != nil {
		c.log.Warn("graph cache entry corrupt, dropping", "scenario_id", scenarioID, "error", err)
		c.Invalidate(ctx, scenarioID)
		return nil, false
	}
	return scenario.GraphFromData(d), true
}

func (c *GraphCache) set(ctx context.Context, scenarioID string, g *scenario.Graph) {
	data, err := json.Marshal(g.Data())
	if err != nil {
		c.log.Warn("graph cache encode failed", "scenario_id", scenarioID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(scenarioID), data, c.ttl).Err(); err != nil {
		c.log.Warn("graph cache write failed", "scenario_id", scenarioID, "error", err)
	}
}
