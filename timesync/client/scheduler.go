/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"fmt"
	"time"
)

// Phase is the phase of the sync loop
type Phase int

// Sync loop phases
const (
	// PhaseIdle means nothing is scheduled and nothing runs
	PhaseIdle Phase = iota
	// PhaseScheduled means a probe timer is pending
	PhaseScheduled
	// PhaseProbing means a probe is in flight
	PhaseProbing
	// PhasePaused means the consumer is hidden, no timer is pending
	PhasePaused
)

var phaseToString = map[Phase]string{
	PhaseIdle:      "IDLE",
	PhaseScheduled: "SCHEDULED",
	PhaseProbing:   "PROBING",
	PhasePaused:    "PAUSED",
}

func (p Phase) String() string {
	if v, ok := phaseToString[p]; ok {
		return v
	}
	return "UNKNOWN"
}

type event int

const (
	// timer armed
	eventArm event = iota
	// timer fired, probe started
	eventFire
	// probe finished while visible
	eventDone
	// probe finished while hidden
	eventDoneHidden
	eventHide
	eventShow
)

var eventToString = map[event]string{
	eventArm:        "arm",
	eventFire:       "fire",
	eventDone:       "done",
	eventDoneHidden: "done-hidden",
	eventHide:       "hide",
	eventShow:       "show",
}

func (e event) String() string {
	return eventToString[e]
}

// transitions lists every allowed phase change. Anything missing is a bug in the loop.
var transitions = map[Phase]map[event]Phase{
	PhaseIdle: {
		eventArm:  PhaseScheduled,
		eventHide: PhasePaused,
		eventShow: PhaseScheduled,
	},
	PhaseScheduled: {
		eventArm:  PhaseScheduled,
		eventFire: PhaseProbing,
		eventHide: PhasePaused,
		eventShow: PhaseScheduled,
	},
	PhaseProbing: {
		eventDone:       PhaseScheduled,
		eventDoneHidden: PhasePaused,
		eventHide:       PhaseProbing,
		eventShow:       PhaseProbing,
	},
	PhasePaused: {
		eventHide: PhasePaused,
		eventShow: PhaseScheduled,
	},
}

func transition(from Phase, e event) (Phase, error) {
	to, ok := transitions[from][e]
	if !ok {
		return from, fmt.Errorf("no transition from %s on %s", from, e)
	}
	return to, nil
}

// SchedulerState is a snapshot of the sync loop state
type SchedulerState struct {
	Phase  Phase
	Hidden bool
	// NextDelay is the delay of the pending timer, zero when none is pending
	NextDelay time.Duration
	// LastProbeSentAt is monotonic ms of the last probe start
	LastProbeSentAt float64
	// Samples is the number of samples in the window
	Samples int
}

// nextInterval picks the delay before the next probe: long once the window is full
// and the last cycle worked, short otherwise
func nextInterval(success bool, windowFull bool, short, long time.Duration) time.Duration {
	if success && windowFull {
		return long
	}
	return short
}
