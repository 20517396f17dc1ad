package seqdb

import (
	"context"
	"fmt"
	"strings"
)

// Summary describes an open database.
type Summary struct {
	Name        string
	Title       string
	Date        string
	SeqType     SeqType
	NumOIDs     int
	NumSeqs     int
	TotalLength uint64
	MaxLength   int
	Volumes     []string
	AliasFiles  []string
	DiskUsage   int64
	Filtered    bool
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", s.Title)
	fmt.Fprintf(&b, "\t%d sequences; %d total residues (%s)\n", s.NumSeqs, s.TotalLength, s.SeqType)
	if s.Date != "" {
		fmt.Fprintf(&b, "\tDate: %s\n", s.Date)
	}
	fmt.Fprintf(&b, "\tLongest sequence: %d residues\n", s.MaxLength)
	fmt.Fprintf(&b, "\tVolumes:\n")
	for _, v := range s.Volumes {
		fmt.Fprintf(&b, "\t\t%s\n", v)
	}
	if len(s.AliasFiles) > 0 {
		fmt.Fprintf(&b, "\tAlias files:\n")
		for _, a := range s.AliasFiles {
			fmt.Fprintf(&b, "\t\t%s\n", a)
		}
	}
	fmt.Fprintf(&b, "\tBytes on disk: %d\n", s.DiskUsage)
	return b.String()
}

// Files returns every file the database reads: alias files, then the
// files of each volume.
func (db *DB) Files(ctx context.Context) ([]string, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	files := db.AliasFileNames()
	for i := range db.vols.Len() {
		vf, err := db.vols.Volume(i).Files(ctx)
		if err != nil {
			return nil, err
		}
		files = append(files, vf...)
	}
	return files, nil
}

// DiskUsage returns the total size in bytes of the database files.
func (db *DB) DiskUsage(ctx context.Context) (int64, error) {
	files, err := db.Files(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		n, err := db.atlas.FileSize(ctx, f)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Summary collects the database metadata.
func (db *DB) Summary(ctx context.Context) (Summary, error) {
	usage, err := db.DiskUsage(ctx)
	if err != nil {
		return Summary{}, err
	}
	maxLen, err := db.MaxLength(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Name:        db.name,
		Title:       db.title,
		Date:        db.date,
		SeqType:     db.seqType,
		NumOIDs:     db.NumOIDs(),
		NumSeqs:     db.NumSeqs(),
		TotalLength: db.TotalLength(),
		MaxLength:   maxLen,
		Volumes:     db.VolumeNames(),
		AliasFiles:  db.AliasFileNames(),
		DiskUsage:   usage,
		Filtered:    db.IsFiltered(),
	}, nil
}
