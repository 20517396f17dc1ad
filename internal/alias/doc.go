// Package alias resolves database names into a tree of alias nodes and
// physical volumes.
//
// An alias file (".pal" for protein, ".nal" for nucleotide) is a text file
// of "KEY value" lines naming child databases in DBLIST and attaching
// filters to them. Resolution produces the ordered list of distinct volumes,
// the filter tree consumed when building the OID list, and the aggregate
// title, date and totals metadata.
package alias
