package parser

import (
	"os"
	"sort"
	"strings"
)

// SourceSet is program text assembled from one or more files.  Offsets into
// the assembled text map back to a file, line and column.
type SourceSet struct {
	text  string
	files []sourceFile
}

type sourceFile struct {
	name  string
	start int
	size  int
	// lines holds the file-relative offset of each line start.
	lines []int
}

// ConcatSource reads filenames and appends src to their contents, each file
// ending in a newline so a statement never spans two files.
func ConcatSource(filenames []string, src string) (*SourceSet, error) {
	var b strings.Builder
	var files []sourceFile
	for _, name := range filenames {
		buf, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files = append(files, newSourceFile(name, b.Len(), string(buf)))
		b.Write(buf)
		b.WriteByte('\n')
	}
	files = append(files, newSourceFile("", b.Len(), src))
	b.WriteString(src)
	return &SourceSet{text: b.String(), files: files}, nil
}

// NewSourceSet returns a SourceSet holding the single text src.
func NewSourceSet(filename, src string) *SourceSet {
	return &SourceSet{
		text:  src,
		files: []sourceFile{newSourceFile(filename, 0, src)},
	}
}

func newSourceFile(name string, start int, src string) sourceFile {
	lines := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return sourceFile{name: name, start: start, size: len(src), lines: lines}
}

func (s *SourceSet) Text() string {
	return s.text
}

func (s *SourceSet) fileOf(pos int) *sourceFile {
	i := sort.Search(len(s.files), func(i int) bool { return s.files[i].start > pos }) - 1
	return &s.files[max(i, 0)]
}

func (f *sourceFile) lineOf(offset int) int {
	i := sort.Search(len(f.lines), func(i int) bool { return f.lines[i] > offset }) - 1
	return max(i, 0)
}

// Locate returns the file holding pos and the position of pos within it.
// A negative pos yields an invalid Position.
func (s *SourceSet) Locate(pos int) (string, Position) {
	if pos < 0 {
		return "", Position{Pos: -1, Offset: -1, Line: -1, Column: -1}
	}
	f := s.fileOf(pos)
	offset := pos - f.start
	i := f.lineOf(offset)
	return f.name, Position{
		Pos:    pos,
		Offset: offset,
		Line:   i + 1,
		Column: offset - f.lines[i] + 1,
	}
}

// Line returns the text of the line holding pos without its newline.
func (s *SourceSet) Line(pos int) string {
	f := s.fileOf(pos)
	i := f.lineOf(pos - f.start)
	start, end := f.lines[i], f.size
	if i+1 < len(f.lines) {
		end = f.lines[i+1]
	}
	if start >= end {
		return ""
	}
	return strings.TrimSuffix(s.text[f.start+start:f.start+end], "\n")
}

type Position struct {
	Pos    int `json:"pos"`    // offset in the SourceSet
	Offset int `json:"offset"` // offset in the file
	Line   int `json:"line"`   // 1-based
	Column int `json:"column"` // 1-based
}

func (p Position) IsValid() bool { return p.Pos >= 0 }
