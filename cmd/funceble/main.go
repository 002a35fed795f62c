// Package main provides the entry point for the funceble CLI.
//
// funceble tests the availability, syntax or reputation of domains, IP
// addresses and URLs, one by one or from large lists.
//
// Usage:
//
//	funceble test example.org
//	funceble test -f list.txt
//
// See --help for all available options.
package main

// main is the entry point for funceble.
func main() {
	Execute()
}
