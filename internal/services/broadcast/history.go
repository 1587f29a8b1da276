package broadcast

import (
	"sort"
	"time"
)

func (s *Service) putStatus(r *Report, cfg Config) {
	s.statusMu.Lock()
	s.status[r.ID] = r
	s.statusMu.Unlock()
	s.pruneStatus(time.Now(), cfg)
}

func (s *Service) dropStatus(id string) {
	s.statusMu.Lock()
	delete(s.status, id)
	s.statusMu.Unlock()
}

func (s *Service) updateStatus(rep Report) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[rep.ID]; st != nil {
		queued := st.QueuedAt
		*st = rep
		st.QueuedAt = queued
		st.Results = nil
	}
}

func (s *Service) finishStatus(rep Report) {
	rep.Running = false
	s.updateStatus(rep)
}

// Status returns a copy of one report.
func (s *Service) Status(id string) (Report, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return Report{}, false
	}
	return *st, true
}

// Recent returns up to n reports, newest first.
func (s *Service) Recent(n int) []Report {
	s.statusMu.RLock()
	out := make([]Report, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	s.statusMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Last returns the most recently queued report.
func (s *Service) Last() (Report, bool) {
	r := s.Recent(1)
	if len(r) == 0 {
		return Report{}, false
	}
	return r[0], true
}

func (s *Service) pruneStatus(now time.Time, cfg Config) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	// Finished reports older than the TTL go first.
	for id, st := range s.status {
		if !st.Running && !st.FinishedAt.IsZero() && now.Sub(st.FinishedAt) > cfg.HistoryTTL {
			delete(s.status, id)
		}
	}
	if len(s.status) <= cfg.HistorySize {
		return
	}

	type kv struct {
		id string
		t  time.Time
	}
	items := make([]kv, 0, len(s.status))
	for id, st := range s.status {
		if st.Running || st.FinishedAt.IsZero() {
			continue
		}
		items = append(items, kv{id: id, t: st.FinishedAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].t.Before(items[j].t) })

	excess := len(s.status) - cfg.HistorySize
	for i := 0; i < excess && i < len(items); i++ {
		delete(s.status, items[i].id)
	}
}
