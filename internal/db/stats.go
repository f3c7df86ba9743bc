package db

import "sync/atomic"

// ContextStats holds counters about the usage of a ConnContext.
type ContextStats struct {
	CacheHits        int64 `json:"cacheHits"`
	CacheMisses      int64 `json:"cacheMisses"`
	Prepares         int64 `json:"prepares"`
	Execs            int64 `json:"execs"`
	Begins           int64 `json:"begins"`
	Joins            int64 `json:"joins"`
	Commits          int64 `json:"commits"`
	Rollbacks        int64 `json:"rollbacks"`
	CachedStatements int64 `json:"cachedStatements"` // Derived in real time.
}

// contextStats are the live counters behind ContextStats. They are atomic
// so that diagnostics can read them from another worker.
type contextStats struct {
	cacheHits   int64
	cacheMisses int64
	prepares    int64
	execs       int64
	begins      int64
	joins       int64
	commits     int64
	rollbacks   int64
}

func (s *contextStats) addCacheHit()  { atomic.AddInt64(&s.cacheHits, 1) }
func (s *contextStats) addCacheMiss() { atomic.AddInt64(&s.cacheMisses, 1) }
func (s *contextStats) addPrepare()   { atomic.AddInt64(&s.prepares, 1) }
func (s *contextStats) addExec()      { atomic.AddInt64(&s.execs, 1) }
func (s *contextStats) addBegin()     { atomic.AddInt64(&s.begins, 1) }
func (s *contextStats) addJoin()      { atomic.AddInt64(&s.joins, 1) }
func (s *contextStats) addCommit()    { atomic.AddInt64(&s.commits, 1) }
func (s *contextStats) addRollback()  { atomic.AddInt64(&s.rollbacks, 1) }

func (s *contextStats) snapshot() ContextStats {
	return ContextStats{
		CacheHits:   atomic.LoadInt64(&s.cacheHits),
		CacheMisses: atomic.LoadInt64(&s.cacheMisses),
		Prepares:    atomic.LoadInt64(&s.prepares),
		Execs:       atomic.LoadInt64(&s.execs),
		Begins:      atomic.LoadInt64(&s.begins),
		Joins:       atomic.LoadInt64(&s.joins),
		Commits:     atomic.LoadInt64(&s.commits),
		Rollbacks:   atomic.LoadInt64(&s.rollbacks),
	}
}
