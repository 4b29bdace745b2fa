/*
Package runner implements the job run loop.

Each iteration diagnoses the allocation, decides whether enough healthy
nodes remain and no halt condition holds, launches the application on the
survivors and waits for it (directly or through the watchdog). After the
launch ends the nodes are diagnosed again with reasons logged, the attempt
budget is charged, and the loop either settles and retries or stops.

A node excluded once stays excluded until the invocation ends. A node that
comes back mid-job could rejoin with an empty cache and break the redundancy
of a checkpoint that was being spread across the job's nodes.

However the loop stops, recovery runs once against the nodes still up.
*/
package runner
