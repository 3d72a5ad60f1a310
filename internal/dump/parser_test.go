package dump

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, p *Parser) [][]string {
	t.Helper()
	var rows [][]string
	for {
		fields, err := p.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		row := make([]string, len(fields))
		for i, f := range fields {
			if f.Null {
				row[i] = "<NULL>"
			} else {
				row[i] = string(f.Raw)
			}
		}
		rows = append(rows, row)
	}
}

func TestParserBasic(t *testing.T) {
	input := "-- comment\n" +
		"CREATE TABLE `page` (x int);\n" +
		"INSERT INTO `page` VALUES (1,0,'Foo',0),(2,0,'Bar',1);\n" +
		"INSERT INTO `page` VALUES (3,14,'Category:Baz',0);\n"
	rows := collectRows(t, NewParser(strings.NewReader(input), "page"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "0", "Foo", "0"}, rows[0])
	assert.Equal(t, []string{"2", "0", "Bar", "1"}, rows[1])
	assert.Equal(t, []string{"3", "14", "Category:Baz", "0"}, rows[2])
}

func TestParserEscapes(t *testing.T) {
	input := `INSERT INTO ` + "`page`" + ` VALUES ` +
		`(1,0,'O\'Brien',0),(2,0,'Back\\slash',0),(3,0,'Tab\there',0),(4,0,'Doubled''quote',0);` + "\n"
	rows := collectRows(t, NewParser(strings.NewReader(input), "page"))
	require.Len(t, rows, 4)
	assert.Equal(t, "O'Brien", rows[0][2])
	assert.Equal(t, `Back\slash`, rows[1][2])
	assert.Equal(t, "Tab\there", rows[2][2])
	assert.Equal(t, "Doubled'quote", rows[3][2])
}

func TestParserNullAndNumbers(t *testing.T) {
	input := "INSERT INTO `page` VALUES (1,-2,NULL,0.5),(2,0,'x',1e3);\n"
	rows := collectRows(t, NewParser(strings.NewReader(input), "page"))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "-2", "<NULL>", "0.5"}, rows[0])
	assert.Equal(t, []string{"2", "0", "x", "1e3"}, rows[1])
}

func TestParserCommaInsideString(t *testing.T) {
	input := "INSERT INTO `page` VALUES (1,0,'a,b),(c',0);\n"
	rows := collectRows(t, NewParser(strings.NewReader(input), "page"))
	require.Len(t, rows, 1)
	assert.Equal(t, "a,b),(c", rows[0][2])
}

func TestParserMalformed(t *testing.T) {
	input := "INSERT INTO `page` VALUES (1,0,'Foo,0);\n"
	p := NewParser(strings.NewReader(input), "page")
	_, err := p.Next()
	var malformed *MalformedDumpError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "page", malformed.Table)
}

func TestParserWrongTable(t *testing.T) {
	input := "INSERT INTO `redirect` VALUES (1,0,'Foo');\n"
	p := NewParser(strings.NewReader(input), "page")
	_, err := p.Next()
	var malformed *MalformedDumpError
	require.ErrorAs(t, err, &malformed)
}

func TestParserEmptyStream(t *testing.T) {
	p := NewParser(strings.NewReader("-- nothing here\n"), "page")
	_, err := p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenSQLGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.sql.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("INSERT INTO `page` VALUES (7,0,'Zip',0);\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := OpenSQL(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	rows := collectRows(t, NewParser(r, "page"))
	require.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0][0])
}

func TestPageReader(t *testing.T) {
	input := "INSERT INTO `page` VALUES " +
		"(10,0,'Alpha',0,0,0.5,'x','y',1,100,'wikitext',NULL)," +
		"(11,0,'Alpha_redirect',1,0,0.5,'x','y',1,100,'wikitext',NULL)," +
		"(12,4,'Project:Page',0,0,0.5,'x','y',1,100,'wikitext',NULL);\n"
	pr := NewPageReader(strings.NewReader(input))

	row, err := pr.Next()
	require.NoError(t, err)
	assert.Equal(t, PageRow{ID: 10, Namespace: 0, Title: []byte("Alpha"), IsRedirect: false}, row)

	row, err = pr.Next()
	require.NoError(t, err)
	assert.True(t, row.IsRedirect)
	assert.Equal(t, uint32(11), row.ID)

	row, err = pr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.Namespace)

	_, err = pr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRedirectReader(t *testing.T) {
	input := "INSERT INTO `redirect` VALUES (11,0,'Alpha','',''),(12,2,'User_page',NULL,NULL);\n"
	rr := NewRedirectReader(strings.NewReader(input))

	row, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(11), row.From)
	assert.Equal(t, []byte("Alpha"), row.Title)

	row, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Namespace)

	_, err = rr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPageLinkReader(t *testing.T) {
	input := "INSERT INTO `pagelinks` VALUES (10,0,'Beta',0),(10,0,'Gamma',4);\n"
	lr := NewPageLinkReader(strings.NewReader(input))

	row, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, PageLinkRow{From: 10, FromNamespace: 0, Namespace: 0, Title: []byte("Beta")}, row)

	row, err = lr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.FromNamespace)

	_, err = lr.Next()
	assert.Equal(t, io.EOF, err)
}
