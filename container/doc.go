// Package container writes hierarchical HDF5 containers incrementally.
//
// A [Container] is one file holding nested groups, named attributes and
// [ExtendableArray] datasets. Arrays are chunked, may grow along any
// dimension declared growable, and can be appended to while the file stays
// readable by standard HDF5 tools: every [Container.Flush] leaves a complete
// file on disk.
//
// Basic usage:
//
//	c, err := container.Open("session.arf", container.CreateTruncate)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	arr, err := c.OpenOrCreateArray("/rec_0/channel0", container.Int16,
//	    []uint64{0}, []uint64{2048})
//	if err != nil {
//	    return err
//	}
//	_, err = arr.AppendBlock([]int16{1, 2, 3}, 1)
//
// Opening an existing file with [OpenOrCreate] loads its groups, attributes
// and chunk indexes so arrays can be reattached and extended. [ReadOnly]
// loads the same tree but never writes to the file.
package container
