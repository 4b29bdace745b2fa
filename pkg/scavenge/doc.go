/*
Package scavenge recovers datasets left in node-local cache after the last
run attempt.

Recovery runs in two passes over the checkpoint library's index:

 1. Unflushed output datasets, oldest to newest. Each is copied from every up
    node with the copy tool and rebuilt with the index build command. The
    first one that fails stops the pass and becomes the failure boundary.
 2. Checkpoints strictly older than the boundary (all of them when nothing
    failed), newest to oldest. Checkpoints already handled by the output pass
    reuse that outcome. The first checkpoint flushed successfully is made the
    current restart point and the pass stops. A checkpoint that is already
    flushed also stops the pass, since everything older is superseded by it.

The checkpoint pass never crosses the boundary, so the job is never pointed at
a checkpoint newer than a dataset that could not be secured.
*/
package scavenge
