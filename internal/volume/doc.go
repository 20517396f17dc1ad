// Package volume reads one physical database volume: the index, sequence and
// header files plus the optional numeric ID indices, the accession and taxid
// key-value index and per-OID column files.
//
// All operations take a local OID in [0, NumOIDs). File contents are read
// through atlas leases; the index tables stay leased for the life of the
// Volume, everything else is leased per call or loaded lazily on first use.
package volume
