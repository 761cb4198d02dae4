// Package superblock reads and writes the version 2 superblock, the fixed
// entry point at offset 0 of every container file.
//
// Version 2/3 layout (O = size of offsets):
//
//	Offset  Size  Description
//	0       8     Signature
//	8       1     Version (2 or 3)
//	9       1     Size of offsets
//	10      1     Size of lengths
//	11      1     File consistency flags
//	12      O     Base address
//	12+O    O     Superblock extension address
//	12+2O   O     End-of-file address
//	12+3O   O     Root group object header address
//	12+4O   4     Checksum (lookup3)
//
// Version 0/1 superblocks (symbol-table root groups) are rejected with
// [ErrUnsupportedVersion]: the writer never produces them.
package superblock
