// Package object reads and writes version 2 HDF5 object headers.
//
// An object header is the metadata block of a group or dataset. It begins
// with the "OHDR" signature and holds a sequence of header messages followed
// by a Jenkins lookup3 checksum. Headers that outgrow their first chunk
// continue in "OCHK" blocks referenced by continuation messages; [Read]
// follows those and reports every block the header occupies so the caller can
// reclaim the space when the object is rewritten.
package object
