// Package testutil writes small on-disk databases for tests.
//
// This package is intended for use in tests only. It produces every file
// format the engine reads: volumes with their numeric ID indices, the
// accession/taxid key-value index, mask columns, alias files, ID lists and
// OID masks.
//
//	files, err := testutil.BuildVolume(testutil.VolumeSpec{
//		Base: "prot",
//		Type: volume.Protein,
//		Seqs: []testutil.Seq{
//			{Letters: "MKV", Deflines: testutil.Deflines(testutil.Def("title", 9606, "gi|10", "sp|P1.1|"))},
//		},
//	})
//	testutil.WriteFiles(t, dir, files)
package testutil
