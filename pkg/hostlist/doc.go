/*
Package hostlist converts between compressed range hostlists and node sets.

Every other scrun package talks about nodes through this package. A compressed
hostlist groups names that share a prefix and suffix into one bracket group:

	rank[1-3,7]-ib,login1  <->  rank1-ib rank2-ib rank3-ib rank7-ib login1

# Parsing

Expand accepts bare names, bracket groups with comma separated numbers and
dash ranges, an optional suffix after the closing bracket, and any number of
comma separated groups. A range bound with a leading zero fixes the pad width
of that range, so "a[08-10]" expands to a08, a09, a10.

Nested or unbalanced brackets, empty brackets, descending ranges and more than
one bracket group per name return an error wrapping ErrInvalidHostlistFormat.
An empty string is an empty set, never an error.

# Compressing

Compress folds names by the digits at the end of the name (after stripping any
non-numeric suffix). Numbers within a group are sorted and consecutive runs are
collapsed into "a-b". A group with a single member is written without brackets.
When any name is zero padded to some width, every name of that prefix, suffix
and digit count joins the padded group, so a08,a09,a10 gives "a[08-10]" in
any input order.

Diff, Intersect and Union work on expanded sets and keep the order of their
first argument.
*/
package hostlist
