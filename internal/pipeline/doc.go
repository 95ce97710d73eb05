// Package pipeline drives the mosaic stages over files on disk.
//
// The stages can run one at a time, persisting their results between runs:
//
//	sources   image directory -> pool file
//	targets   image(s)        -> <image>.target.json
//	maps      target(s)+pool  -> <image>.map.json
//	collages  map(s)          -> <image>.collage.jpg
//
// or all together with Runner.Run, which keeps the target grid and the
// assignment in memory.
//
// Every stage accepts a WorkItem: a single file or a directory batch. A
// batch of "photos" writes its targets to photos.targets/, whose maps go to
// the sibling photos.maps/ and whose collages go to photos.collages/.
//
// Failures of single items are logged, reported to the Observer and
// collected in the BatchReport; the batch goes on. A pool file that cannot
// be read aborts Maps and Run with *pool.PersistenceError.
package pipeline
