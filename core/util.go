package core

import (
	"sort"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// UniqueIDs returns the sorted distinct positive IDs in ids.
func UniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	res := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	sort.Ints(res)
	return res
}

// DiffIDs returns the IDs of target missing from current (toAdd)
// and the IDs of current missing from target (toRemove). Both are sorted.
func DiffIDs(current, target []int) (toAdd, toRemove []int) {
	cur := make(map[int]struct{}, len(current))
	for _, id := range current {
		cur[id] = struct{}{}
	}
	tgt := make(map[int]struct{}, len(target))
	for _, id := range target {
		tgt[id] = struct{}{}
		if _, ok := cur[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if _, ok := tgt[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	sort.Ints(toAdd)
	sort.Ints(toRemove)
	return toAdd, toRemove
}

// ContainsID reports whether id is in ids.
func ContainsID(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
