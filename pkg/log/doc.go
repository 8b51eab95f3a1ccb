/*
Package log provides structured logging for the daemon using zerolog.

A single global Logger is configured once via Init and read everywhere
else through component loggers: WithComponent attaches a "component"
field (one per core subsystem — accounter, appmgr, sched, sync,
eventloop, proxy), and WithApp attaches "pid"/"exc_id" for log lines
that concern one specific Execution Context.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	schedLog := log.WithComponent("sched")
	schedLog.Info().Str("outcome", outcome.String()).Msg("scheduling cycle done")

	excLog := log.WithApp(pid, excID)
	excLog.Warn().Str("phase", "prechange").Msg("sync phase failed, disabling exc")

JSONOutput selects JSON-structured output (production) over a
human-readable console writer (development); both include timestamps.
*/
package log
