package convert

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPlainConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want []string
	}{
		{name: "plain domain", line: "example.org", want: []string{"example.org"}},
		{name: "hosts entry", line: "0.0.0.0 example.net", want: []string{"example.net"}},
		{name: "hosts entry with many hosts", line: "127.0.0.1\texample.net www.example.net", want: []string{"example.net", "www.example.net"}},
		{name: "comment", line: "# comment", want: nil},
		{name: "trailing comment", line: "example.org # note", want: []string{"example.org"}},
		{name: "blank", line: "   ", want: nil},
		{name: "lone ip", line: "93.184.216.34", want: []string{"93.184.216.34"}},
		{name: "url fragment", line: "https://example.org/a#frag", want: []string{"https://example.org/a#frag"}},
		{name: "url fragment and comment", line: "https://example.org/a#frag #note", want: []string{"https://example.org/a#frag"}},
		{name: "comment without space", line: "example.org\t#note", want: []string{"example.org"}},
		{name: "indented comment", line: "  #0.0.0.0 example.org", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Plain{}.Convert(tt.line)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Convert(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestChainScenario(t *testing.T) {
	t.Parallel()

	chain := Chain{Plain{}}
	var subjects []string
	for _, line := range []string{"example.org", "0.0.0.0 example.net", "# comment"} {
		subjects = append(subjects, chain.Convert(line)...)
	}

	if diff := cmp.Diff([]string{"example.org", "example.net"}, subjects); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	upper := ConverterFunc(func(s string) []string { return []string{strings.ToUpper(s)} })
	chain := Chain{Plain{}, Dedup(upper)}

	got := chain.Convert("0.0.0.0 a.example b.example")
	if diff := cmp.Diff([]string{"A.EXAMPLE", "B.EXAMPLE"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if got := (Chain{}).Convert("  x  "); !cmp.Equal(got, []string{"x"}) {
		t.Errorf("empty chain should trim, got %v", got)
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()

	got := Dedup(Plain{}).Convert("0.0.0.0 a.example a.example b.example")
	if diff := cmp.Diff([]string{"a.example", "b.example"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
