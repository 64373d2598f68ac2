// Package main is the datahub batch tool: it ingests provider feeds
// into the canonical schema, crawls page-based sources, and maintains
// the geocode and link caches.
package main

// main defers all execution to the Cobra CLI.
func main() {
	Execute()
}
