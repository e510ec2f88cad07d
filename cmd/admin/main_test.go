package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/sim/world"
)

func TestParseAABB(t *testing.T) {
	cases := []struct {
		in       string
		min, max [3]int
		wantErr  bool
	}{
		{in: "0,0,0:10,5,10", min: [3]int{0, 0, 0}, max: [3]int{10, 5, 10}},
		{in: "10,5,-3:0,0,3", min: [3]int{0, 0, -3}, max: [3]int{10, 5, 3}},
		{in: " 1, 2, 3 : 4, 5, 6", min: [3]int{1, 2, 3}, max: [3]int{4, 5, 6}},
		{in: "1,2:3,4", wantErr: true},
		{in: "1,2,3", wantErr: true},
		{in: "a,b,c:1,2,3", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			min, max, err := parseAABB(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.min, min)
			assert.Equal(t, tc.max, max)
		})
	}
}

func TestPlanRollbackKeepsEarliestFrom(t *testing.T) {
	recs := []auditRec{
		{Seq: 1, Entry: world.AuditEntry{Tick: 5, Pos: [3]int{1, 0, 1}, From: 2, To: 4}},
		{Seq: 2, Entry: world.AuditEntry{Tick: 5, Pos: [3]int{1, 0, 1}, From: 4, To: 5}},
		{Seq: 3, Entry: world.AuditEntry{Tick: 9, Pos: [3]int{1, 0, 1}, From: 5, To: 0}},
		{Seq: 4, Entry: world.AuditEntry{Tick: 7, Pos: [3]int{0, 0, 0}, From: 2, To: 0}},
		{Seq: 5, Entry: world.AuditEntry{Tick: 3, Pos: [3]int{0, -1, 0}, From: 1, To: 4}},
	}
	plan, unknown := planRollback(recs)
	assert.Empty(t, unknown)
	assert.Equal(t, []restore{
		{Pos: [3]int{0, -1, 0}, Block: 1},
		{Pos: [3]int{0, 0, 0}, Block: 2},
		{Pos: [3]int{1, 0, 1}, Block: 2},
	}, plan)
}

func TestPlanRollbackNonResidentEdits(t *testing.T) {
	cases := []struct {
		name    string
		recs    []auditRec
		plan    []restore
		unknown [][3]int
	}{
		{
			name: "rebuilt previous block is restored",
			recs: []auditRec{
				{Seq: 1, Entry: world.AuditEntry{Tick: 2, Pos: [3]int{81, -1, 81}, From: 1, To: 4}},
			},
			plan: []restore{{Pos: [3]int{81, -1, 81}, Block: 1}},
		},
		{
			name: "unknown previous block is skipped",
			recs: []auditRec{
				{Seq: 1, Entry: world.AuditEntry{Tick: 2, Pos: [3]int{81, -1, 81}, To: 4, FromUnknown: true}},
				{Seq: 2, Entry: world.AuditEntry{Tick: 3, Pos: [3]int{81, -1, 81}, From: 4, To: 3, Resident: true}},
				{Seq: 3, Entry: world.AuditEntry{Tick: 3, Pos: [3]int{0, 0, 0}, From: 2, To: 0, Resident: true}},
			},
			plan:    []restore{{Pos: [3]int{0, 0, 0}, Block: 2}},
			unknown: [][3]int{{81, -1, 81}},
		},
		{
			name: "later unknown edit does not hide a known earliest",
			recs: []auditRec{
				{Seq: 1, Entry: world.AuditEntry{Tick: 1, Pos: [3]int{5, 0, 5}, From: 2, To: 4, Resident: true}},
				{Seq: 2, Entry: world.AuditEntry{Tick: 8, Pos: [3]int{5, 0, 5}, To: 0, FromUnknown: true}},
			},
			plan: []restore{{Pos: [3]int{5, 0, 5}, Block: 2}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, unknown := planRollback(tc.recs)
			assert.Equal(t, tc.plan, plan)
			assert.Equal(t, tc.unknown, unknown)
		})
	}
}

func TestReadAuditFilters(t *testing.T) {
	dir := t.TempDir()
	al := persistlog.NewAuditLogger(dir)
	entries := []world.AuditEntry{
		{Tick: 1, Action: "SET_BLOCK", Pos: [3]int{0, 0, 0}},
		{Tick: 2, Action: "SET_BLOCK", Pos: [3]int{50, 0, 0}},
		{Tick: 3, Action: "SET_BLOCK", Pos: [3]int{1, 1, 1}},
		{Tick: 9, Action: "SET_BLOCK", Pos: [3]int{2, 2, 2}},
	}
	for _, e := range entries {
		require.NoError(t, al.WriteAudit(e))
	}
	require.NoError(t, al.Close())

	recs, err := readAudit(filepath.Join(dir, "audit"), 1, 5, [3]int{0, 0, 0}, [3]int{10, 10, 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(1), recs[0].Entry.Tick)
	assert.Equal(t, uint64(3), recs[1].Entry.Tick)
	assert.Less(t, recs[0].Seq, recs[1].Seq)
}
