// Package mcp exposes the pipeline as Model Context Protocol tools.
//
// Tools:
//   - run_pipeline: run a request through all five stages
//   - describe_agent: report the agent profile and active strategies
//   - validate_artifacts: run the configured validator on caller-supplied files
package mcp
