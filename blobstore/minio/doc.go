// Package minio provides a read-only BlobStore implementation using the MinIO client.
//
// It serves database volumes from MinIO and other S3-compatible storage
// systems such as Ceph, SeaweedFS and Garage.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "blastdb/")
//	db, err := seqdb.Open(ctx, "nt", seqdb.Nucleotide, seqdb.WithStore(store))
//
// # Features
//
//   - Ranged reads; only the touched slices of a volume are fetched
//   - Works with any S3-compatible storage (Ceph, Garage, SeaweedFS)
//   - Optional read throughput limit
//   - Air-gap friendly (no AWS dependencies required)
package minio
