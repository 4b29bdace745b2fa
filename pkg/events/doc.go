/*
Package events records the job's observability log.

Each Event carries a timestamp, the job id, an EventType (RUN_START, RUN_END,
NODE_FAIL, SCAVENGE_START, SCAVENGE_END, HALT, WATCHDOG_KILL) and optional
dataset id, elapsed seconds, node and note. FileSink appends one JSON object
per line; LogSink writes through the structured logger; Multi combines sinks.

Components emit through a Recorder, which fills in the job id and time and
logs, rather than returns, sink failures. Losing an event record never stops
the job.
*/
package events
