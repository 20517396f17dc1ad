// Package s3 provides a read-only Amazon S3 implementation of the
// blobstore.BlobStore interface, so database volumes can be served straight
// from a bucket.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "blastdb/",
//	    s3.WithIOLimit(64<<20),
//	)
//
//	db, err := seqdb.Open(ctx, "nr", seqdb.Protein, seqdb.WithStore(store))
//
// # Features
//
//   - Range reads for partial fetches of sequence and header files
//   - Parallel whole-object downloads for alias and ID list files
//   - Automatic pagination for listing
//   - Optional read throughput limit
package s3
