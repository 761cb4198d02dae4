// Package alloc manages file space for container writes.
//
// Every block written to a container (chunk data, B-tree nodes, object
// headers) gets its address from an [Allocator]. Space that a commit stops
// referencing is handed to [Allocator.Free], but it only becomes reusable
// after [Allocator.Release] is called, which the container does once the new
// superblock is on disk. Until then the previous on-disk tree may still point
// at it.
//
//	a := alloc.New(48)          // first byte after a v2 superblock
//	addr := a.Alloc(4096)       // chunk
//	a.Free(oldAddr, oldSize)    // replaced chunk, still live on disk
//	// ... write superblock ...
//	a.Release()                 // oldAddr may now be handed out again
package alloc
