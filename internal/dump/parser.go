package dump

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MalformedDumpError aborts a build: the SQL stream for a table could not be
// tokenized at the given byte offset of the decompressed stream.
type MalformedDumpError struct {
	Table  string
	Offset int64
	Reason string
}

func (e *MalformedDumpError) Error() string {
	return fmt.Sprintf("malformed %s dump at offset %d: %s", e.Table, e.Offset, e.Reason)
}

// Field is one column value of a dump row. Raw holds the unescaped bytes for
// string/varbinary columns, or the literal digits for numeric columns. Raw is
// only valid until the next call to Next.
type Field struct {
	Raw  []byte
	Null bool
}

func (f Field) Int() (int64, error) {
	return strconv.ParseInt(string(f.Raw), 10, 64)
}

// Uint32 parses an unsigned 32-bit id column.
func (f Field) Uint32() (uint32, error) {
	v, err := strconv.ParseUint(string(f.Raw), 10, 32)
	return uint32(v), err
}

// Parser tokenizes `INSERT INTO <table> VALUES (…),(…);` statements into
// rows. It is streaming: the reader is consumed once, and memory use is
// bounded by the longest single statement (one line in Wikipedia dumps).
// Non-INSERT statements (DDL, comments, locks) are skipped.
type Parser struct {
	r      *bufio.Reader
	table  string
	prefix []byte

	// current statement body and cursor
	line      []byte
	pos       int
	lineBase  int64 // stream offset of line[0]
	streamOff int64

	fields []Field
	spans  []fieldSpan
	buf    []byte
}

type fieldSpan struct {
	start, end int
	null       bool
}

// NewParser reads SQL statements for the named table from r. The name is
// used to match INSERT statements and for error reporting; an INSERT for a
// different table fails the parse, since each dump file carries one table.
func NewParser(r io.Reader, table string) *Parser {
	return &Parser{
		r:      bufio.NewReaderSize(r, 1<<20),
		table:  table,
		prefix: []byte("INSERT INTO `" + table + "` VALUES "),
	}
}

// OpenSQL opens a plain or gzip-compressed SQL dump file.
func OpenSQL(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &gzipFile{zr: zr, f: f}, nil
}

type gzipFile struct {
	zr *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipFile) Close() error {
	err := g.zr.Close()
	if err2 := g.f.Close(); err == nil {
		err = err2
	}
	return err
}

// Next returns the fields of the next row, or io.EOF after the final
// statement. The returned slice and its Raw bytes are reused on the next
// call.
func (p *Parser) Next() ([]Field, error) {
	for {
		if p.line == nil {
			ok, err := p.seekStatement()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, io.EOF
			}
		}
		row, err := p.readTuple()
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
		p.line = nil // statement done; look for the next INSERT
	}
}

// seekStatement reads lines until the next INSERT statement and positions
// the cursor at its first tuple. Returns false at EOF.
func (p *Parser) seekStatement() (bool, error) {
	for {
		line, err := p.readLine()
		if line == nil {
			if err == io.EOF || err == nil {
				return false, nil
			}
			return false, err
		}
		if bytes.HasPrefix(line, []byte("INSERT ")) {
			if !bytes.HasPrefix(line, p.prefix) {
				return false, p.malformedAt(0, "INSERT for unexpected table")
			}
			p.line = line
			p.pos = len(p.prefix)
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
	}
}

// readLine reads one full line, however long, advancing lineBase.
func (p *Parser) readLine() ([]byte, error) {
	var line []byte
	p.lineBase = p.streamOff
	defer func() { p.streamOff += int64(len(line)) }()
	for {
		chunk, err := p.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if len(line) == 0 {
			return nil, err
		}
		return line, err
	}
}

// readTuple parses one "(v,v,…)" group. Returns (nil, nil) when the
// statement terminator ';' is reached instead of another tuple.
func (p *Parser) readTuple() ([]Field, error) {
	c, ok := p.next()
	if !ok {
		return nil, p.malformed("truncated statement")
	}
	switch c {
	case ',':
		c, ok = p.next()
		if !ok || c != '(' {
			return nil, p.malformed("expected tuple after ','")
		}
	case '(':
	case ';':
		return nil, nil
	default:
		return nil, p.malformed(fmt.Sprintf("expected tuple, got %q", c))
	}

	p.spans = p.spans[:0]
	p.buf = p.buf[:0]
	for {
		if err := p.readField(); err != nil {
			return nil, err
		}
		c, ok := p.next()
		if !ok {
			return nil, p.malformed("truncated tuple")
		}
		switch c {
		case ',':
			continue
		case ')':
			return p.resolveFields(), nil
		default:
			return nil, p.malformed(fmt.Sprintf("expected ',' or ')', got %q", c))
		}
	}
}

// readField parses one value: NULL, a bare number, or a quoted byte string.
// Unescaped bytes accumulate in buf; spans are resolved after the tuple is
// complete because appends may reallocate buf mid-tuple.
func (p *Parser) readField() error {
	c, ok := p.peek()
	if !ok {
		return p.malformed("truncated field")
	}
	start := len(p.buf)
	switch {
	case c == 'N':
		if !bytes.HasPrefix(p.line[p.pos:], []byte("NULL")) {
			return p.malformed("expected NULL")
		}
		p.pos += 4
		p.spans = append(p.spans, fieldSpan{null: true})
		return nil
	case c == '\'':
		p.pos++
		if err := p.readString(); err != nil {
			return err
		}
	default:
		if err := p.readNumber(); err != nil {
			return err
		}
	}
	p.spans = append(p.spans, fieldSpan{start: start, end: len(p.buf)})
	return nil
}

func (p *Parser) resolveFields() []Field {
	if cap(p.fields) < len(p.spans) {
		p.fields = make([]Field, len(p.spans))
	}
	p.fields = p.fields[:len(p.spans)]
	for i, s := range p.spans {
		if s.null {
			p.fields[i] = Field{Null: true}
		} else {
			p.fields[i] = Field{Raw: p.buf[s.start:s.end]}
		}
	}
	return p.fields
}

// readString consumes a quoted value, unescaping into buf. MediaWiki dumps
// use backslash escapes; quote doubling also appears and is handled.
func (p *Parser) readString() error {
	for {
		c, ok := p.next()
		if !ok {
			return p.malformed("unterminated string")
		}
		switch c {
		case '\'':
			if c2, ok := p.peek(); ok && c2 == '\'' {
				p.pos++
				p.buf = append(p.buf, '\'')
				continue
			}
			return nil
		case '\\':
			esc, ok := p.next()
			if !ok {
				return p.malformed("truncated escape")
			}
			p.buf = append(p.buf, unescape(esc))
		default:
			p.buf = append(p.buf, c)
		}
	}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	case 'Z':
		return 26
	default:
		// \' \" \\ and anything else escape to themselves
		return c
	}
}

func (p *Parser) readNumber() error {
	start := p.pos
	for {
		c, ok := p.peek()
		if !ok {
			break
		}
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return p.malformed("expected value")
	}
	p.buf = append(p.buf, p.line[start:p.pos]...)
	return nil
}

func (p *Parser) next() (byte, bool) {
	if p.pos >= len(p.line) {
		return 0, false
	}
	c := p.line[p.pos]
	p.pos++
	return c, true
}

func (p *Parser) peek() (byte, bool) {
	if p.pos >= len(p.line) {
		return 0, false
	}
	return p.line[p.pos], true
}

func (p *Parser) malformed(reason string) error {
	return p.malformedAt(p.pos, reason)
}

func (p *Parser) malformedAt(pos int, reason string) error {
	return &MalformedDumpError{Table: p.table, Offset: p.lineBase + int64(pos), Reason: reason}
}
