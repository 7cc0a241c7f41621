// Package store is the persistent layer of the cache: one self-describing
// record file per entry, inside a single root directory.
//
// # Record format
//
// A record is a JSON document:
//
//	{"format":1,"group":"options","key":"alloptions","kind":"map",
//	 "expiresAt":1735689600,"value":{"k":"map","v":{...}}}
//
// Every nested value carries its own kind tag, so integers, floats, byte
// slices and objects survive the round trip with their shape intact. The
// document may be wrapped in a zstd frame; readers detect the frame magic and
// accept both forms. Records are passive data and are never executed.
//
// Anything in the directory that does not decode as a current-format record
// is reported as ErrMalformed and treated by callers as a miss.
//
// # Expiry
//
// There is no background sweeper. Read checks expiresAt and removes an
// expired file on the spot.
//
// # Sentinel
//
// The root holds an empty file named "index". Ensure creates it, Sweep keeps
// it, and its presence is how callers tell a healthy root from one that was
// removed or never initialized.
package store
