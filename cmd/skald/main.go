// Command skald runs the memo ingestion worker and the tools around it.
//
// Subcommands:
//
//	worker   consume memo events and run the ingestion pipeline
//	search   run a retrieval or RAG query against a project
//	enqueue  publish memo events
//	recover  re-publish memos whose processing stalled
//	import   create memos from a directory of Markdown files
//	migrate  apply or roll back schema migrations
//	backup   snapshot or restore the sqlite store
//
// Configuration comes from defaults, an optional YAML file (--config or
// SKALD_CONFIG_FILE) and the environment, in that order.
package main

func main() {
	Execute()
}
