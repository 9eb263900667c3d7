// Package crawler holds the domain model shared by every stage of the catalog
// crawl: work items, normalized model keys, per-year records, the extraction
// variants returned by page parsers, and the error taxonomy used to classify
// failures. It also declares the collaborator interfaces the orchestrator is
// wired against.
package crawler
