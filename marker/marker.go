// Package marker rewrites the region between a start tag line and an end
// tag line of a text file, leaving every other line untouched.
//
// A language file prepared for syncing looks like:
//
//	const messages = {
//	  // lingo-start
//	  'hello': 'Hello',
//	  // lingo-end
//	};
//
// Patch streams the file line by line. Lines up to and including the start
// tag line are copied; lines after it are dropped until a line containing
// the end tag, where the freshly rendered block is written followed by the
// end tag line itself. The region may repeat any number of times.
//
// Output goes to "<path>.tmp", which is renamed over the original only
// after it has been flushed, synced and closed, so readers never observe a
// half-written file.
package marker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// DefaultChunkSize is the read size used when streaming a file.
const DefaultChunkSize = 32 * 1024

// TmpSuffix is appended to the target path for the intermediate file.
const TmpSuffix = ".tmp"

var (
	// ErrUnterminatedMarker is returned in strict mode when the stream ends
	// inside a marker region.
	ErrUnterminatedMarker = errors.New("start tag without matching end tag")

	// ErrEmptyTag is returned when the start or end tag is empty.
	ErrEmptyTag = errors.New("start and end tags must not be empty")
)

// Tags are the substrings identifying the start and end marker lines.
type Tags struct {
	Start string
	End   string
}

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

// Outcome summarises what a Patch call did.
type Outcome int

const (
	// Unmodified: the file was rewritten with an empty block.
	Unmodified Outcome = iota
	// Modified: the file was rewritten with at least one translation line.
	Modified
	// NotFound: the file does not exist; nothing was written.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Modified:
		return "modified"
	case Unmodified:
		return "unmodified"
	case NotFound:
		return "not found"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is returned by Patch.
type Result struct {
	Outcome Outcome
	// Regions is the number of complete start/end regions rewritten.
	Regions int
	// Unterminated is set when the stream ended inside a region; every
	// line after the last start tag was dropped.
	Unterminated bool
}

// FileError is an I/O failure on a target file.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type options struct {
	chunkSize int
	strict    bool
}

// Option configures Patch.
type Option func(*options)

// WithChunkSize sets the read chunk size. Values ≤ 0 are ignored.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithStrict makes an unterminated region an error: the temporary file is
// discarded and the original is left as it was.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// ---------------------------------------------------------------------------
// Patch
// ---------------------------------------------------------------------------

// Patch replaces every marker region of the file at path with content.
// A missing file yields Outcome NotFound and a nil error.
func Patch(path, content string, tags Tags, opts ...Option) (Result, error) {
	o := options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	if tags.Start == "" || tags.End == "" {
		return Result{}, ErrEmptyTag
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Outcome: NotFound}, nil
		}
		return Result{}, &FileError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return Result{}, &FileError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}

	in, err := os.Open(path)
	if err != nil {
		return Result{}, &FileError{Op: "open", Path: path, Err: err}
	}
	defer in.Close()

	tmpPath := path + TmpSuffix
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return Result{}, &FileError{Op: "create", Path: tmpPath, Err: err}
	}
	discard := func() {
		out.Close()
		os.Remove(tmpPath)
	}

	stats, err := Rewrite(out, in, content, tags, o.chunkSize)
	if err != nil {
		discard()
		return Result{}, &FileError{Op: "rewrite", Path: path, Err: err}
	}
	res := Result{Regions: stats.Regions, Unterminated: stats.Unterminated}
	if stats.Unterminated && o.strict {
		discard()
		return res, &FileError{Op: "rewrite", Path: path, Err: ErrUnterminatedMarker}
	}

	if err := out.Sync(); err != nil {
		discard()
		return Result{}, &FileError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return Result{}, &FileError{Op: "close", Path: tmpPath, Err: err}
	}
	in.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return Result{}, &FileError{Op: "rename", Path: tmpPath, Err: err}
	}

	res.Outcome = Unmodified
	if content != "" {
		res.Outcome = Modified
	}
	return res, nil
}

// Preview runs the same rewrite as Patch into io.Discard and reports what
// Patch would do, without creating or changing any file.
func Preview(path, content string, tags Tags, opts ...Option) (Result, error) {
	o := options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	if tags.Start == "" || tags.End == "" {
		return Result{}, ErrEmptyTag
	}

	in, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Outcome: NotFound}, nil
		}
		return Result{}, &FileError{Op: "open", Path: path, Err: err}
	}
	defer in.Close()
	if info, err := in.Stat(); err == nil && info.IsDir() {
		return Result{}, &FileError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}

	stats, err := Rewrite(io.Discard, in, content, tags, o.chunkSize)
	if err != nil {
		return Result{}, &FileError{Op: "rewrite", Path: path, Err: err}
	}
	res := Result{Regions: stats.Regions, Unterminated: stats.Unterminated}
	if stats.Unterminated && o.strict {
		return res, &FileError{Op: "rewrite", Path: path, Err: ErrUnterminatedMarker}
	}
	res.Outcome = Unmodified
	if content != "" {
		res.Outcome = Modified
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Streaming rewrite
// ---------------------------------------------------------------------------

// Stats describes a finished Rewrite.
type Stats struct {
	Regions      int
	Unterminated bool
}

type state int

const (
	beforeMarker state = iota
	insideMarker
)

// rewriter is the two-state machine driven by complete lines.
type rewriter struct {
	w       *bufio.Writer
	tags    Tags
	content string
	state   state
	regions int
}

func (rw *rewriter) line(l string) {
	switch rw.state {
	case beforeMarker:
		rw.w.WriteString(l)
		rw.w.WriteByte('\n')
		if strings.Contains(l, rw.tags.Start) {
			rw.state = insideMarker
		}
	case insideMarker:
		// A nested start tag is ignored: only the end tag leaves the region.
		if !strings.Contains(l, rw.tags.End) {
			return
		}
		if rw.content != "" {
			rw.w.WriteString(rw.content)
			rw.w.WriteByte('\n')
		}
		rw.w.WriteString(l)
		rw.w.WriteByte('\n')
		rw.state = beforeMarker
		rw.regions++
	}
}

// Rewrite copies r to w, replacing the lines inside every marker region
// with content. r is consumed in chunks of chunkSize bytes; a line is only
// acted on once its newline (or the end of the stream) has been read, so
// the result does not depend on where chunk boundaries fall.
//
// A final line without a trailing newline is copied verbatim when outside
// a region and is never treated as a marker line. If the stream ends inside
// a region, that line and everything after the last start tag is dropped
// and Stats.Unterminated is set.
func Rewrite(w io.Writer, r io.Reader, content string, tags Tags, chunkSize int) (Stats, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	bw := bufio.NewWriter(w)
	rw := &rewriter{w: bw, tags: tags, content: content}
	var sp LineSplitter

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, l := range sp.Feed(buf[:n]) {
				rw.line(l)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Stats{}, fmt.Errorf("read: %w", err)
		}
	}

	if rest := sp.Rest(); rest != "" && rw.state == beforeMarker {
		bw.WriteString(rest)
	}
	if err := bw.Flush(); err != nil {
		return Stats{}, fmt.Errorf("write: %w", err)
	}
	return Stats{Regions: rw.regions, Unterminated: rw.state == insideMarker}, nil
}
