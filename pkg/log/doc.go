/*
Package log provides structured logging for Drover using zerolog.

A single global logger is configured once at startup; components
derive child loggers carrying their name, and helpers attach the
common fields (task, tenant, node IDs) so log lines are uniformly
queryable.

# Usage

	log.Init(log.Config{Level: "info", JSONOutput: true})

	logger := log.WithComponent("scheduler")
	logger.Info().Str("task_id", id).Msg("task placed")

	log.WithTaskID(id).Warn().Msg("checkpoint unusable")

Console output (the default) is human-readable with colored levels;
JSON output is for production aggregation. Level, format and
destination come from Config; everything else is zerolog as-is.

Levels: debug, info, warn, error, fatal. Fatal logs and exits.
*/
package log
