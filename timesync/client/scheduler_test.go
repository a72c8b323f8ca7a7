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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from Phase
		ev   event
		to   Phase
	}{
		{PhaseIdle, eventArm, PhaseScheduled},
		{PhaseScheduled, eventFire, PhaseProbing},
		{PhaseProbing, eventDone, PhaseScheduled},
		{PhaseProbing, eventDoneHidden, PhasePaused},
		{PhaseProbing, eventHide, PhaseProbing},
		{PhaseProbing, eventShow, PhaseProbing},
		{PhaseScheduled, eventHide, PhasePaused},
		{PhasePaused, eventHide, PhasePaused},
		{PhasePaused, eventShow, PhaseScheduled},
		{PhaseIdle, eventShow, PhaseScheduled},
	}
	for _, c := range cases {
		got, err := transition(c.from, c.ev)
		require.NoError(t, err, "%s on %s", c.from, c.ev)
		require.Equal(t, c.to, got, "%s on %s", c.from, c.ev)
	}
}

func TestTransitionInvalid(t *testing.T) {
	// a second probe can't start while one is in flight
	got, err := transition(PhaseProbing, eventFire)
	require.Error(t, err)
	require.Equal(t, PhaseProbing, got)

	_, err = transition(PhasePaused, eventFire)
	require.Error(t, err)
	_, err = transition(PhaseScheduled, eventDone)
	require.Error(t, err)
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "IDLE", PhaseIdle.String())
	require.Equal(t, "SCHEDULED", PhaseScheduled.String())
	require.Equal(t, "PROBING", PhaseProbing.String())
	require.Equal(t, "PAUSED", PhasePaused.String())
	require.Equal(t, "UNKNOWN", Phase(10).String())
}

func TestNextInterval(t *testing.T) {
	short, long := time.Second, time.Minute
	require.Equal(t, long, nextInterval(true, true, short, long))
	require.Equal(t, short, nextInterval(true, false, short, long))
	require.Equal(t, short, nextInterval(false, true, short, long))
	require.Equal(t, short, nextInterval(false, false, short, long))
}
