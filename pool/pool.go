// Package pool maintains long-lived execution sessions keyed by conversation
// identity so conversational memory survives across otherwise-independent
// requests. Entries are invalidated when the behavior-relevant configuration
// fingerprint changes and reclaimed by TTL when abandoned.
package pool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentharness/agentharness/engine"
	"github.com/agentharness/agentharness/logging"
)

// Fingerprint returns a stable hash over the subset of configuration fields
// that affect conversational behavior: system prompt, allowed tools, model,
// connected MCP server names, setting sources and output format. Changing
// any other field must not force session recreation.
func Fingerprint(cfg engine.Config) string {
	tools := append([]string(nil), cfg.AllowedTools...)
	sort.Strings(tools)

	mcpKeys := make([]string, 0, len(cfg.MCPServers))
	for k := range cfg.MCPServers {
		mcpKeys = append(mcpKeys, k)
	}
	sort.Strings(mcpKeys)

	sources := append([]string(nil), cfg.SettingSources...)
	sort.Strings(sources)

	// json.Marshal emits map keys sorted, so the output format serializes
	// deterministically.
	output, _ := json.Marshal(cfg.OutputFormat)

	input := strings.Join([]string{
		cfg.SystemPrompt,
		strings.Join(tools, ","),
		cfg.Model,
		strings.Join(mcpKeys, ","),
		strings.Join(sources, ","),
		string(output),
	}, "|")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Entry is one pooled session plus bookkeeping metadata. Entries are owned
// exclusively by the Pool.
type Entry struct {
	Session        engine.Session
	ConversationID string
	Fingerprint    string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

func (e *Entry) stale(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.LastAccessedAt) > ttl
}

// Options configures a Pool.
type Options struct {
	// TTL after which an idle entry is reclaimed by EvictStale.
	TTL time.Duration
	// EvictionInterval between background eviction sweeps.
	EvictionInterval time.Duration
	// Logger for pool lifecycle events.
	Logger logging.Logger
}

// Pool is a concurrency-safe cache of live execution sessions keyed by
// conversation id. A single mutex serializes all pool mutations; it is held
// only around map lookup/mutation and session open/close, never across an
// engine submit round-trip, so requests for different conversations never
// block on each other for the duration of a model call.
type Pool struct {
	engine engine.Engine
	ttl    time.Duration
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]*Entry

	evictionInterval time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
	loopWG           sync.WaitGroup
}

// New constructs an empty pool over the given engine.
func New(eng engine.Engine, optFns ...func(o *Options)) *Pool {
	opts := Options{
		TTL:              15 * time.Minute,
		EvictionInterval: time.Minute,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Pool{
		engine:           eng,
		ttl:              opts.TTL,
		logger:           opts.Logger,
		entries:          make(map[string]*Entry),
		evictionInterval: opts.EvictionInterval,
		stopCh:           make(chan struct{}),
	}
}

// GetOrCreate returns the live session for conversationID, creating one from
// cfg when absent. A fingerprint mismatch destroys the old session before a
// replacement is created. The boolean reports whether the session is new.
// Two concurrent calls for the same conversation id never both report true.
func (p *Pool) GetOrCreate(ctx context.Context, conversationID string, cfg engine.Config) (engine.Session, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fingerprint := Fingerprint(cfg)

	if entry, ok := p.entries[conversationID]; ok {
		if entry.Fingerprint == fingerprint {
			entry.LastAccessedAt = time.Now().UTC()
			entry.AccessCount++
			p.logger.Info("reusing pooled session",
				"context_id", conversationID,
				"access_count", entry.AccessCount,
				"age", time.Since(entry.CreatedAt))
			return entry.Session, false, nil
		}
		p.logger.Warn("configuration changed mid-conversation, recreating session", "context_id", conversationID)
		p.destroyLocked(entry)
		delete(p.entries, conversationID)
	}

	p.logger.Info("creating pooled session", "context_id", conversationID)
	session, err := p.engine.Open(ctx, cfg)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	p.entries[conversationID] = &Entry{
		Session:        session,
		ConversationID: conversationID,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	return session, true, nil
}

// Remove destroys and drops the entry for conversationID. Idempotent; no-op
// when absent.
func (p *Pool) Remove(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[conversationID]
	if !ok {
		return
	}
	p.logger.Info("removing pooled session",
		"context_id", conversationID,
		"access_count", entry.AccessCount,
		"lifetime", time.Since(entry.CreatedAt))
	p.destroyLocked(entry)
	delete(p.entries, conversationID)
}

// EvictStale destroys entries idle longer than the pool TTL. It reclaims
// sessions abandoned without an explicit Remove, e.g. after an orchestrator
// crash mid-task.
func (p *Pool) EvictStale() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	for id, entry := range p.entries {
		if !entry.stale(p.ttl, now) {
			continue
		}
		p.logger.Info("evicting stale session",
			"context_id", id,
			"idle", now.Sub(entry.LastAccessedAt))
		p.destroyLocked(entry)
		delete(p.entries, id)
	}
}

// Start launches the background eviction loop. Safe to call once; the loop
// terminates on Shutdown.
func (p *Pool) Start() {
	p.loopWG.Add(1)
	go func() {
		defer p.loopWG.Done()
		ticker := time.NewTicker(p.evictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.EvictStale()
			}
		}
	}()
	p.logger.Info("started session pool eviction loop", "interval", p.evictionInterval)
}

// Shutdown stops the eviction loop and destroys all sessions. Used at
// process teardown.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.loopWG.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("shutting down session pool", "pool_size", len(p.entries))
	for id, entry := range p.entries {
		p.destroyLocked(entry)
		delete(p.entries, id)
	}
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Contains reports whether a live entry exists for conversationID.
func (p *Pool) Contains(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[conversationID]
	return ok
}

func (p *Pool) destroyLocked(entry *Entry) {
	if err := entry.Session.Close(); err != nil {
		p.logger.Error("error closing pooled session", "context_id", entry.ConversationID, "error", err)
	}
}
