/*
Package health decides which allocation nodes are fit to run the next attempt.

Diagnostics runs an ordered sequence of Test implementations. Each test sees
only the nodes no earlier test has rejected, so cheap checks shield the
expensive ones. The standard sequence is:

 1. ExcludedTest: the operator's exclusion list, unconditionally
 2. ResourceManagerTest: nodes the resource manager already reports down
 3. ReachabilityTest: one probe per node (ping or TCP dial), retried once
 4. EchoTest: a trivial command through the remote executor, expecting "UP"
 5. CapacityTest: the node-check agent verifying the control and cache
    directories on every node

The result is a types.HealthReport mapping each rejected node to the first
reason recorded for it. A test that cannot run at all (missing binary, failed
query) is logged and skipped; it never aborts the sequence.

# Capacity Checks

CapacityTest runs "scrun check-node" on the nodes. On the node, CheckNode
creates each directory if needed, compares free bytes (first attempt) or total
bytes (later attempts) against its threshold, and writes then removes a marker
file. The agent prints PASS, or one "FAIL: reason" line per failed directory.
*/
package health
