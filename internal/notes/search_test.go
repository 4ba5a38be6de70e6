package notes

import (
	"context"
	"testing"
)

func TestSearch(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	_, _ = m.Create(ctx, "Groceries", "milk, eggs")
	_, _ = m.Create(ctx, "Standup", "Discuss the MILK budget")
	_, _ = m.Create(ctx, "Ideas", "nothing here")

	cases := []struct {
		term string
		want []string
	}{
		{"", []string{"Ideas", "Standup", "Groceries"}},
		{"milk", []string{"Standup", "Groceries"}},
		{"STAND", []string{"Standup"}},
		{"zzz", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.term, func(t *testing.T) {
			if got := titles(m.Search(tc.term)); !equal(got, tc.want) {
				t.Errorf("Search(%q) = %v, want %v", tc.term, got, tc.want)
			}
		})
	}
}

func TestSearchIsIdempotentAndReadOnly(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	_, _ = m.Create(ctx, "Alpha", "one")
	_, _ = m.Create(ctx, "Beta", "two")
	before := ids(m.Notes())

	first := m.Search("alp")
	second := m.Search("alp")
	if !equal(ids(first), ids(second)) {
		t.Errorf("results differ: %v vs %v", ids(first), ids(second))
	}

	// Mutating a result must not reach the collection.
	first[0].Title = "mutated"
	if got := ids(m.Notes()); !equal(got, before) {
		t.Errorf("collection changed: %v", got)
	}
	if n, _ := m.Get(first[0].ID); n.Title != "Alpha" {
		t.Errorf("collection entry mutated through search result: %+v", n)
	}
}
