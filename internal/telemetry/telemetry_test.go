// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttlplan/ttlc/internal/telemetry"
)

func TestRecorder_EnterRecordsOneSample(t *testing.T) {
	rec := telemetry.NewRecorder()
	done := rec.Enter("lexer")
	time.Sleep(time.Millisecond)
	done()

	snap := rec.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "lexer", snap[0].Component)
	require.Equal(t, int64(1), snap[0].Calls)
	require.Greater(t, snap[0].MeanSecs, 0.0)
}

func TestRecorder_CurrentTracksNesting(t *testing.T) {
	rec := telemetry.NewRecorder()
	require.Equal(t, "", telemetry.Current())

	doneOuter := rec.Enter("parser")
	require.Equal(t, "parser", telemetry.Current())

	doneInner := rec.Enter("lexer")
	require.Equal(t, "lexer", telemetry.Current())

	doneInner()
	require.Equal(t, "parser", telemetry.Current())

	doneOuter()
	require.Equal(t, "", telemetry.Current())
}

func TestRecorder_SnapshotSortedByMeanDescending(t *testing.T) {
	rec := telemetry.NewRecorder()
	fast := rec.Enter("fast")
	fast()
	slow := rec.Enter("slow")
	time.Sleep(2 * time.Millisecond)
	slow()

	snap := rec.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "slow", snap[0].Component)
	require.Equal(t, "fast", snap[1].Component)
}

func TestRecorder_MergeCombinesCallCounts(t *testing.T) {
	a := telemetry.NewRecorder()
	b := telemetry.NewRecorder()
	a.Enter("owl")()
	b.Enter("owl")()
	b.Enter("owl")()

	a.Merge(b)
	snap := a.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, int64(3), snap[0].Calls)
}
