package scheduler

import "github.com/robfig/cron/v3"

func (s *Service) Snapshot() Snapshot {
	type view struct {
		d       *scheduleDef
		spec    string
		entryID cron.EntryID
	}
	s.mu.Lock()
	views := make([]view, 0, len(s.defs))
	for _, d := range s.defs {
		views = append(views, view{d: d, spec: d.spec, entryID: d.entryID})
	}
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(views))
	for _, v := range views {
		it := ScheduleInfo{Name: v.d.name, Spec: v.spec, Timeout: v.d.timeout}
		if c != nil && v.entryID != 0 {
			e := c.Entry(v.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		st := v.d.state
		st.mu.Lock()
		it.Running = st.running
		it.Runs = st.runs
		it.Skipped = st.skipped
		it.Failures = st.failures
		it.LastRun = st.lastRun
		it.LastDur = st.lastDur
		it.LastErr = st.lastErr
		st.mu.Unlock()
		items = append(items, it)
	}
	return Snapshot{Running: c != nil, Timezone: loc.String(), Schedules: items}
}
