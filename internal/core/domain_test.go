package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-01", "2024-03-01", true},
		{"2024-3-1", "2024-03-01", true},
		{" 2024-12-31 ", "2024-12-31", true},
		{"2024-02-30", "", false},
		{"2024/03/01", "", false},
		{"", "", false},
		{"yesterday", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.want {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMonthBounds(t *testing.T) {
	cases := []struct {
		d           Date
		first, last string
	}{
		{NewDate(2024, 2, 14), "2024-02-01", "2024-02-29"},
		{NewDate(2023, 2, 1), "2023-02-01", "2023-02-28"},
		{NewDate(2024, 12, 31), "2024-12-01", "2024-12-31"},
	}
	for _, tc := range cases {
		first, last := tc.d.MonthBounds()
		if first.String() != tc.first || last.String() != tc.last {
			t.Fatalf("%s: got %s..%s, want %s..%s", tc.d, first, last, tc.first, tc.last)
		}
	}
}

func TestParseCategoryType(t *testing.T) {
	for in, want := range map[string]CategoryType{"income": Income, "EXPENSE": Expense, " Income ": Income} {
		got, err := ParseCategoryType(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseCategoryType("transfer"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if Income.Title() != "Income" || Expense.Title() != "Expense" {
		t.Fatalf("unexpected titles %q %q", Income.Title(), Expense.Title())
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Food", Type: Expense}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Category{
		{Name: " ", Type: Expense},
		{Name: "Food", Type: "transfer"},
	}
	for i, c := range bads {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{CategoryID: 1, Amount: decimal.RequireFromString("50000"), Date: NewDate(2024, 3, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{CategoryID: 0, Amount: decimal.NewFromInt(1), Date: NewDate(2024, 3, 1)},
		{CategoryID: 1, Amount: decimal.NewFromInt(-1), Date: NewDate(2024, 3, 1)},
		{CategoryID: 1, Amount: decimal.RequireFromString("1.001"), Date: NewDate(2024, 3, 1)},
		{CategoryID: 1, Amount: decimal.NewFromInt(1)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2024, 3, 5))
	if err != nil || string(b) != `"2024-03-05"` {
		t.Fatalf("marshal: %s err=%v", b, err)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"2024-03-05"`), &d); err != nil || !d.Equal(NewDate(2024, 3, 5).Time) {
		t.Fatalf("unmarshal: %v err=%v", d, err)
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Transaction: Transaction{ID: 1, Date: NewDate(2024, 3, 1), CreatedAt: base}},
		{Transaction: Transaction{ID: 2, Date: NewDate(2024, 3, 2), CreatedAt: base}},
		{Transaction: Transaction{ID: 3, Date: NewDate(2024, 3, 1), CreatedAt: base.Add(time.Hour)}},
		{Transaction: Transaction{ID: 4, Date: NewDate(2024, 3, 1), CreatedAt: base}},
	}
	SortNewestFirst(entries)

	want := []int64{2, 3, 1, 4}
	for i, id := range want {
		if entries[i].ID != id {
			t.Fatalf("position %d: got id %d, want %d", i, entries[i].ID, id)
		}
	}
}
