package app

import (
	"sort"
	"testing"
)

func TestDiffIDs(t *testing.T) {
	cases := []struct {
		name       string
		prev, next []int64
		added      []int64
		removed    []int64
	}{
		{"no change", []int64{1, 2}, []int64{2, 1}, nil, nil},
		{"grant", []int64{1}, []int64{1, 2, 3}, []int64{2, 3}, nil},
		{"revoke", []int64{1, 2, 3}, []int64{2}, nil, []int64{1, 3}},
		{"swap", []int64{1, 2}, []int64{2, 4}, []int64{4}, []int64{1}},
		{"from empty", nil, []int64{9}, []int64{9}, nil},
		{"to empty", []int64{9}, nil, nil, []int64{9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			added, removed := diffIDs(tc.prev, tc.next)
			if !sameIDs(added, tc.added) {
				t.Fatalf("added = %v, want %v", added, tc.added)
			}
			if !sameIDs(removed, tc.removed) {
				t.Fatalf("removed = %v, want %v", removed, tc.removed)
			}
		})
	}
}

func TestStaffDirectoryIDs(t *testing.T) {
	d := newStaffDirectory([]int64{5, 6})
	if !sameIDs(d.IDs(), []int64{5, 6}) {
		t.Fatalf("ids = %v", d.IDs())
	}
	d.SetIDs([]int64{6, 7})
	if d.IsStaff(5) || !d.IsStaff(7) {
		t.Fatal("membership not updated")
	}
	if !sameIDs(d.IDs(), []int64{6, 7}) {
		t.Fatalf("ids = %v", d.IDs())
	}
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int64(nil), a...)
	bs := append([]int64(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
