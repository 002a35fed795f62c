// Package convert turns raw input lines into subjects.
//
// Only the plain and hosts formats are understood here. Richer formats
// (adblock, RPZ, CIDR expansion) plug in through the Converter interface.
package convert

import (
	"net/netip"
	"strings"
)

// Converter expands one input line into zero or more subjects.
type Converter interface {
	Convert(line string) []string
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(line string) []string

// Convert calls f.
func (f ConverterFunc) Convert(line string) []string {
	return f(line)
}

// Plain understands plain lists and hosts files:
//
//	example.org
//	0.0.0.0 example.net www.example.net # trailing comment
//
// Comments and blank lines yield nothing. A comment starts with a '#' at the
// start of the line or after whitespace; a '#' inside a subject, such as a
// URL fragment, is kept. A leading IP address is dropped when it is followed
// by at least one host.
type Plain struct{}

// Convert implements Converter.
func (Plain) Convert(line string) []string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if strings.HasPrefix(field, "#") {
			fields = fields[:i]
			break
		}
	}
	if len(fields) == 0 {
		return nil
	}

	if len(fields) > 1 && isAddr(fields[0]) {
		fields = fields[1:]
	}

	return fields
}

func isAddr(s string) bool {
	_, err := netip.ParseAddr(strings.Trim(s, "[]"))
	return err == nil
}

// Chain applies converters in order, each one to every output of the
// previous one. An empty chain returns the trimmed line.
type Chain []Converter

// Convert implements Converter.
func (c Chain) Convert(line string) []string {
	current := []string{strings.TrimSpace(line)}
	if current[0] == "" {
		return nil
	}

	for _, conv := range c {
		var next []string
		for _, s := range current {
			next = append(next, conv.Convert(s)...)
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}

	return current
}

// Dedup wraps a converter and drops duplicates within one line.
func Dedup(conv Converter) Converter {
	return ConverterFunc(func(line string) []string {
		out := conv.Convert(line)
		seen := make(map[string]struct{}, len(out))
		kept := out[:0]
		for _, s := range out {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			kept = append(kept, s)
		}
		return kept
	})
}
