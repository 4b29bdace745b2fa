// Package types holds the value types shared across scrun packages: health
// reports, remote command results, run attempts, dataset records and halt
// conditions.
package types
