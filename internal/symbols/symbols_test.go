package symbols

import (
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "mixed case with padding and trailing comma",
			raw:  "  aapl, msft ,",
			want: []string{"AAPL", "MSFT"},
		},
		{
			name: "single symbol",
			raw:  "tsla",
			want: []string{"TSLA"},
		},
		{
			name: "duplicates collapse",
			raw:  "SPY,spy, Spy ",
			want: []string{"SPY"},
		},
		{
			name: "blank input means no filter",
			raw:  "   ",
			want: nil,
		},
		{
			name: "only separators",
			raw:  ",,,",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.raw).Values()
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFilterSingle(t *testing.T) {
	if _, ok := Expand("aapl,msft").Single(); ok {
		t.Error("two symbols should not report single")
	}

	got, ok := Expand(" nvda ").Single()
	if !ok || got != "NVDA" {
		t.Errorf("Single() = %q, %v; want NVDA, true", got, ok)
	}

	if _, ok := Expand("").Single(); ok {
		t.Error("empty filter should not report single")
	}
}

func TestFilterContains(t *testing.T) {
	f := Expand("aapl,msft")
	if !f.Contains("aapl") {
		t.Error("filter should admit aapl regardless of case")
	}
	if f.Contains("TSLA") {
		t.Error("filter should reject TSLA")
	}
	if !(Filter{}).Contains("anything") {
		t.Error("empty filter should admit everything")
	}
}

func TestExpandList(t *testing.T) {
	got := ExpandList([]string{" ibm", "", "IBM", "goog "}).Values()
	want := []string{"IBM", "GOOG"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandList = %v, want %v", got, want)
	}
}
