package domain

import "testing"

func TestFeedDescription(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{"description only", Item{Title: "T", Description: "Perex"}, "Perex"},
		{"falls back to title", Item{Title: "T"}, "T"},
		{"author and category", Item{Title: "T", Description: "Perex", Author: "Jan Novák", Category: "Recenze"}, "Perex | Author: Jan Novák | Category: Recenze"},
		{"category only", Item{Description: "Perex", Category: "Rozhovor"}, "Perex | Category: Rozhovor"},
	}
	for _, tt := range tests {
		if got := tt.item.FeedDescription(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPageItemsAndSkipped(t *testing.T) {
	p := Page{Entries: []Entry{
		{Item: Item{URL: "a"}},
		{Err: ErrMissingLink},
		{Item: Item{URL: "b"}},
		{Err: ErrDuplicate},
	}}
	items := p.Items()
	if len(items) != 2 || items[0].URL != "a" || items[1].URL != "b" {
		t.Errorf("unexpected items: %+v", items)
	}
	if p.Skipped() != 2 {
		t.Errorf("Skipped() = %d, want 2", p.Skipped())
	}
}
