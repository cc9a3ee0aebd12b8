package scene

import (
	"fmt"
	"sync"
	"time"

	"github.com/lacylights/dmxcore/internal/transaction"
	"github.com/lacylights/dmxcore/internal/universe"
)

// Cue is one step of a cue list: a target snapshot plus fade timing
// (SPEC_FULL.md §4 item 5, grounded on the teacher's playback.CueForPlayback).
type Cue struct {
	ID          string
	Name        string
	Number      float64
	Values      map[ChannelKey]universe.ChannelValue
	FadeInTime  time.Duration
	FollowTime  *time.Duration // nil: wait for explicit GoToCue/Stop
}

// CueList is an ordered, optionally looping sequence of cues.
type CueList struct {
	ID   string
	Cues []Cue
	Loop bool
}

// PlaybackState is a snapshot of one cue list's playback status, returned
// by Status (grounded on playback.PlaybackState/CueListPlaybackStatus).
type PlaybackState struct {
	CueListID       string
	CurrentCueIndex int
	HasCurrentCue   bool
	IsPlaying       bool
	IsFading        bool
	LastUpdated     time.Time
}

// StatusListener is notified whenever a cue list's playback state changes.
type StatusListener func(status PlaybackState)

// Sequencer plays CueLists by writing each cue's target values through a
// ControllerTransaction, honoring per-cue fade time and optional
// auto-follow (SPEC_FULL.md §4 item 5).
type Sequencer struct {
	txReg   transaction.Registry
	tracker *Tracker

	mu          sync.Mutex
	cueLists    map[string]*CueList
	states      map[string]*PlaybackState
	followTimers map[string]*time.Timer

	listeners []StatusListener
}

// NewSequencer builds a Sequencer that commits writes through txReg and
// reports chase activity to tracker.
func NewSequencer(txReg transaction.Registry, tracker *Tracker) *Sequencer {
	return &Sequencer{
		txReg:        txReg,
		tracker:      tracker,
		cueLists:     make(map[string]*CueList),
		states:       make(map[string]*PlaybackState),
		followTimers: make(map[string]*time.Timer),
	}
}

// Subscribe registers a playback status listener.
func (s *Sequencer) Subscribe(l StatusListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// LoadCueList registers (or replaces) a cue list for playback.
func (s *Sequencer) LoadCueList(list *CueList) {
	s.mu.Lock()
	s.cueLists[list.ID] = list
	s.mu.Unlock()
}

// Status returns the current playback state for a cue list, or false if
// the cue list has never been played.
func (s *Sequencer) Status(cueListID string) (PlaybackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[cueListID]
	if !ok {
		return PlaybackState{}, false
	}
	return *state, true
}

// GoToCue jumps directly to a cue index in the named cue list, fading
// into it over the cue's FadeInTime and arming its follow timer if set.
func (s *Sequencer) GoToCue(cueListID string, index int) error {
	s.mu.Lock()
	list, ok := s.cueLists[cueListID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown cue list %q", cueListID)
	}
	if index < 0 || index >= len(list.Cues) {
		s.mu.Unlock()
		return fmt.Errorf("cue index %d out of range for cue list %q", index, cueListID)
	}
	cue := list.Cues[index]
	s.cancelFollowTimerLocked(cueListID)
	s.mu.Unlock()

	s.applyCue(cueListID, cue)

	s.mu.Lock()
	s.states[cueListID] = &PlaybackState{
		CueListID:       cueListID,
		CurrentCueIndex: index,
		HasCurrentCue:   true,
		IsPlaying:       true,
		IsFading:        cue.FadeInTime > 0,
		LastUpdated:     time.Now(),
	}
	s.mu.Unlock()
	s.tracker.RecordChaseStart(cueListID)
	s.emitStatus(cueListID)

	if cue.FadeInTime > 0 {
		time.AfterFunc(cue.FadeInTime, func() { s.markFadeComplete(cueListID, index) })
	}

	if cue.FollowTime != nil {
		s.armFollowTimer(cueListID, index, cue.FadeInTime+*cue.FollowTime)
	}

	return nil
}

// Next advances to the cue after the current one, looping if the cue list
// loops, or stopping if it doesn't and the end is reached.
func (s *Sequencer) Next(cueListID string) error {
	s.mu.Lock()
	list, ok := s.cueLists[cueListID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown cue list %q", cueListID)
	}
	state := s.states[cueListID]
	nextIndex := 0
	if state != nil && state.HasCurrentCue {
		nextIndex = state.CurrentCueIndex + 1
	}
	loop := list.Loop
	count := len(list.Cues)
	s.mu.Unlock()

	if nextIndex >= count {
		if loop && count > 0 {
			nextIndex = 0
		} else {
			s.Stop(cueListID)
			return nil
		}
	}
	return s.GoToCue(cueListID, nextIndex)
}

// Stop halts playback of a cue list, cancelling any pending follow timer.
func (s *Sequencer) Stop(cueListID string) {
	s.mu.Lock()
	s.cancelFollowTimerLocked(cueListID)
	if state, ok := s.states[cueListID]; ok {
		state.IsPlaying = false
		state.IsFading = false
		state.LastUpdated = time.Now()
	}
	s.mu.Unlock()
	s.tracker.RecordChaseStop(cueListID)
	s.emitStatus(cueListID)
}

func (s *Sequencer) cancelFollowTimerLocked(cueListID string) {
	if t, ok := s.followTimers[cueListID]; ok {
		t.Stop()
		delete(s.followTimers, cueListID)
	}
}

func (s *Sequencer) armFollowTimer(cueListID string, fromIndex int, after time.Duration) {
	s.mu.Lock()
	s.cancelFollowTimerLocked(cueListID)
	s.followTimers[cueListID] = time.AfterFunc(after, func() {
		s.mu.Lock()
		state := s.states[cueListID]
		stillOnSameCue := state != nil && state.HasCurrentCue && state.CurrentCueIndex == fromIndex
		s.mu.Unlock()
		if stillOnSameCue {
			_ = s.Next(cueListID)
		}
	})
	s.mu.Unlock()
}

func (s *Sequencer) markFadeComplete(cueListID string, index int) {
	s.mu.Lock()
	state := s.states[cueListID]
	if state != nil && state.HasCurrentCue && state.CurrentCueIndex == index {
		state.IsFading = false
		state.LastUpdated = time.Now()
	}
	s.mu.Unlock()
	s.emitStatus(cueListID)
}

func (s *Sequencer) applyCue(cueListID string, cue Cue) {
	tx := transaction.Open(s.txReg)
	fadeMs := uint32(cue.FadeInTime / time.Millisecond)

	for key, value := range cue.Values {
		_ = tx.Write(key.UniverseKey, key.Channel, universe.ChannelChange{
			Target: value,
			FadeMs: fadeMs,
			Curve:  universe.EasingLinear,
		})
	}
	if err := tx.Commit(); err != nil {
		tx.Discard()
	}
}

func (s *Sequencer) emitStatus(cueListID string) {
	s.mu.Lock()
	state, ok := s.states[cueListID]
	var snapshot PlaybackState
	if ok {
		snapshot = *state
	}
	listeners := append([]StatusListener(nil), s.listeners...)
	s.mu.Unlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		l(snapshot)
	}
}
