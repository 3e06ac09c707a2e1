package service

import (
	"sync/atomic"
	"time"
)

// State — флаги живости бота для /readyz и /healthz.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected atomic.Bool
	wsDrops     atomic.Int64
	lastTickMs  atomic.Int64
	ticks       atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetWSConnected считает обрывы: true→false.
func (s *State) SetWSConnected(v bool) {
	if old := s.wsConnected.Swap(v); old && !v {
		s.wsDrops.Add(1)
	}
}
func (s *State) WSConnected() bool { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) {
	s.lastTickMs.Store(t.UnixMilli())
	s.ticks.Add(1)
}

func (s *State) LastTick() time.Time {
	u := s.lastTickMs.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.UnixMilli(u)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

type Status struct {
	Ready        bool  `json:"ready"`
	WSConnected  bool  `json:"wsConnected"`
	WSDrops      int64 `json:"wsDrops"`
	UptimeSec    int64 `json:"uptimeSec"`
	LastTickUnix int64 `json:"lastTickUnix"`
	Ticks        int64 `json:"ticks"`
}

func (s *State) Status() Status {
	st := Status{
		Ready:       s.Ready(),
		WSConnected: s.WSConnected(),
		WSDrops:     s.wsDrops.Load(),
		UptimeSec:   int64(s.Uptime().Seconds()),
		Ticks:       s.ticks.Load(),
	}
	if t := s.LastTick(); !t.IsZero() {
		st.LastTickUnix = t.Unix()
	}
	return st
}
