// Package seqdb provides read-only access to BLAST-style sequence databases.
//
// A database is one or more volumes (index, sequence and header files,
// plus optional identifier indexes and column files), possibly combined and
// filtered by alias files. seqdb maps the files on demand under a memory
// budget and serves sequences, headers and identifiers by OID.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := seqdb.Open(ctx, "/data/swissprot", seqdb.Protein)
//	defer db.Close()
//
//	fmt.Println(db.Title(), db.NumSeqs(), db.TotalLength())
//
//	for oid := range db.OIDs() {
//	    seq, _ := db.AmbiguousSequence(ctx, oid, seqdb.EncodingIUPAC, nil)
//	    defs, _ := db.Deflines(ctx, oid)
//	    fmt.Println(defs[0].Title, string(seq))
//	}
//
// Several names open as one database, in order:
//
//	db, _ := seqdb.Open(ctx, `nt.00 nt.01 "my db/extra"`, seqdb.Nucleotide)
//
// With seqdb.Unknown, protein files are tried first and nucleotide files
// when no protein database of that name exists.
//
// # Filtering
//
// Alias files (.pal, .nal) can restrict their volumes with GI, TI, seq-id
// and taxid lists, OID masks, OID ranges and membership bits. Callers add
// their own restriction with a positive or negative id list:
//
//	db, _ := seqdb.Open(ctx, "nr", seqdb.Protein, seqdb.WithNegativeGIList(5, 7))
//
// Hidden OIDs keep their numbers. Iteration, chunking, totals and
// identifier lookups only see visible OIDs; Sequence and Deflines accept
// any OID in [0, NumOIDs).
//
// # Parallel Scans
//
// NextChunk hands out disjoint OID chunks to concurrent callers. Each
// goroutine should read sequences through its own Worker, which serves
// consecutive OIDs from one leased buffer without taking a shared lock:
//
//	db.SetNumberOfWorkers(4)
//	for i := range 4 {
//	    go func() {
//	        w, _ := db.Worker(i)
//	        for {
//	            chunk, _ := db.NextChunk(1000)
//	            if chunk.Len() == 0 {
//	                return
//	            }
//	            for oid := range chunk.All() {
//	                seq, _ := w.GetSequence(ctx, oid)
//	                process(seq)
//	                w.RetSequence()
//	            }
//	        }
//	    }()
//	}
//
// # Remote Volumes
//
// Databases can be read from S3 or MinIO through a blob store. A block cache
// keeps recently read ranges in memory or on local disk:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3store.NewStore(s3.NewFromConfig(cfg), "my-bucket", "blastdb/")
//	db, _ := seqdb.Open(ctx, "nr", seqdb.Protein,
//	    seqdb.WithStore(store),
//	    seqdb.WithBlockCache(256<<20, 64<<10),
//	    seqdb.WithDiskCache("/fast/nvme", 16<<30))
package seqdb
