// Package btree reads and writes the version 1 B-tree ("TREE", node type 1)
// that indexes the chunks of a chunked dataset.
//
// Each key holds the stored chunk size, the filter mask and the chunk's
// element offset in every dimension plus a trailing zero for the element
// size dimension. Children of leaf nodes are chunk addresses; children of
// internal nodes are lower-level nodes.
//
// [Build] writes a complete tree bottom-up through a caller-supplied put
// function, so the caller decides where (and whether) each node lands in the
// file. [Read] walks a tree and returns the chunk entries together with the
// blocks the nodes occupy.
package btree
