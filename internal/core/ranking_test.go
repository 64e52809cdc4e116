package core

import (
	"fmt"
	"reflect"
	"testing"
)

func TestRankRecent(t *testing.T) {
	entries := []FoodEntry{
		{Date: 10, Name: "Apple", Quantity: 1},
		{Date: 12, Name: "Bread", Quantity: 2},
		{Date: 11, Name: "Apple", Quantity: 1},
		{Date: 12, Name: "Avocado", Quantity: 1},
		{Date: 5, Name: "Cheese", Quantity: 3},
	}
	got := RankRecent(Aggregate(entries), 10)
	want := []string{"Avocado", "Bread", "Apple", "Cheese"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RankRecent = %v, want %v", got, want)
	}
}

func TestRankPopular(t *testing.T) {
	entries := []FoodEntry{
		{Date: 1, Name: "Apple", Quantity: 5},
		{Date: 2, Name: "Apple", Quantity: 1},
		{Date: 1, Name: "Bread", Quantity: 1},
		{Date: 3, Name: "Bread", Quantity: 1},
		{Date: 3, Name: "Cheese", Quantity: 9},
		{Date: 3, Name: "Butter", Quantity: 1},
	}
	got := RankPopular(Aggregate(entries), 10)
	// Apple and Bread both span 2 days; Bread was used later.
	// Butter and Cheese tie on both keys and fall back to name order.
	want := []string{"Bread", "Apple", "Butter", "Cheese"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RankPopular = %v, want %v", got, want)
	}
}

func TestRankingLimit(t *testing.T) {
	var entries []FoodEntry
	for i := 0; i < 25; i++ {
		entries = append(entries, FoodEntry{Date: Day(i), Name: fmt.Sprintf("food-%02d", i), Quantity: 1})
	}
	stats := Aggregate(entries)
	if got := RankRecent(stats, 10); len(got) != 10 || got[0] != "food-24" {
		t.Fatalf("unexpected recent: %v", got)
	}
	if got := RankPopular(stats, 0); len(got) != DefaultRankingLimit {
		t.Fatalf("limit 0 should fall back to default, got %d", len(got))
	}
}
