/*
Package storage keeps scrun's run history in a local BoltDB file.

The database lives at <dir>/scrun.db with two buckets:

	attempts/<job id>/<invocation>/<attempt number>  -> JSON types.RunAttempt
	run_sizes/<job id>                               -> node count of the last launch

Attempts are written when an attempt starts and rewritten when it ends, so a
crashed invocation still leaves its open attempt behind. The run size feeds
the run loop's "nodes needed" decision on later invocations of the same job.
*/
package storage
