package storage

import (
	"strings"
	"testing"

	"flowstore/internal/symbols"
)

func TestSignaturePrintListQuery(t *testing.T) {
	cases := []struct {
		name     string
		filter   symbols.Filter
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "unfiltered",
			filter:   symbols.Expand(""),
			wantSQL:  "FROM signature_print;",
			wantArgs: 0,
		},
		{
			name:     "single symbol",
			filter:   symbols.Expand("aapl"),
			wantSQL:  "WHERE symbol = $1",
			wantArgs: 1,
		},
		{
			name:     "symbol list",
			filter:   symbols.Expand("AAPL,MSFT"),
			wantSQL:  "WHERE symbol = ANY($1)",
			wantArgs: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args := signaturePrintListQuery(tc.filter)
			if !strings.Contains(sql, tc.wantSQL) {
				t.Errorf("sql = %q, want it to contain %q", sql, tc.wantSQL)
			}
			if len(args) != tc.wantArgs {
				t.Errorf("got %d args, want %d", len(args), tc.wantArgs)
			}
		})
	}
}
