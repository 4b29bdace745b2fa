/*
Package log provides structured logging for scrun using zerolog.

A single package-level Logger is configured once by Init from the CLI. Packages
derive child loggers with WithComponent or ForJob, and the run loop narrows
them further with WithAttempt and WithNode.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scavenge")
	logger.Info().Int("dataset_id", 7).Msg("copy complete")

Output defaults to stderr so the launched application keeps stdout. Console
format is used unless JSONOutput is set.
*/
package log
