package dump

import "io"

// Column positions in the MediaWiki table dumps. The page table carries more
// columns than we read; positions past these are ignored.
const (
	pageColID         = 0
	pageColNamespace  = 1
	pageColTitle      = 2
	pageColIsRedirect = 3

	redirectColFrom      = 0
	redirectColNamespace = 1
	redirectColTitle     = 2

	// pagelinks in the legacy full form
	pagelinkColFrom          = 0
	pagelinkColNamespace     = 1
	pagelinkColTitle         = 2
	pagelinkColFromNamespace = 3
)

// PageRow is one row of the page table.
type PageRow struct {
	ID         uint32
	Namespace  int64
	Title      []byte
	IsRedirect bool
}

// RedirectRow is one row of the redirect table.
type RedirectRow struct {
	From      uint32
	Namespace int64
	Title     []byte
}

// PageLinkRow is one row of the pagelinks table (legacy full form).
type PageLinkRow struct {
	From          uint32
	FromNamespace int64
	Namespace     int64
	Title         []byte
}

// PageReader yields typed page rows from a SQL dump stream.
type PageReader struct{ p *Parser }

func NewPageReader(r io.Reader) *PageReader {
	return &PageReader{p: NewParser(r, "page")}
}

// Next returns the next page row, or io.EOF. The Title bytes are only valid
// until the following call.
func (pr *PageReader) Next() (PageRow, error) {
	fields, err := pr.p.Next()
	if err != nil {
		return PageRow{}, err
	}
	if len(fields) <= pageColIsRedirect {
		return PageRow{}, pr.p.malformed("page row has too few columns")
	}
	id, err := fields[pageColID].Uint32()
	if err != nil {
		return PageRow{}, pr.p.malformed("page_id is not a u32")
	}
	ns, err := fields[pageColNamespace].Int()
	if err != nil {
		return PageRow{}, pr.p.malformed("page_namespace is not an integer")
	}
	isRedirect, err := fields[pageColIsRedirect].Int()
	if err != nil {
		return PageRow{}, pr.p.malformed("page_is_redirect is not an integer")
	}
	return PageRow{
		ID:         id,
		Namespace:  ns,
		Title:      fields[pageColTitle].Raw,
		IsRedirect: isRedirect != 0,
	}, nil
}

// RedirectReader yields typed redirect rows.
type RedirectReader struct{ p *Parser }

func NewRedirectReader(r io.Reader) *RedirectReader {
	return &RedirectReader{p: NewParser(r, "redirect")}
}

func (rr *RedirectReader) Next() (RedirectRow, error) {
	fields, err := rr.p.Next()
	if err != nil {
		return RedirectRow{}, err
	}
	if len(fields) <= redirectColTitle {
		return RedirectRow{}, rr.p.malformed("redirect row has too few columns")
	}
	from, err := fields[redirectColFrom].Uint32()
	if err != nil {
		return RedirectRow{}, rr.p.malformed("rd_from is not a u32")
	}
	ns, err := fields[redirectColNamespace].Int()
	if err != nil {
		return RedirectRow{}, rr.p.malformed("rd_namespace is not an integer")
	}
	return RedirectRow{From: from, Namespace: ns, Title: fields[redirectColTitle].Raw}, nil
}

// PageLinkReader yields typed pagelink rows.
type PageLinkReader struct{ p *Parser }

func NewPageLinkReader(r io.Reader) *PageLinkReader {
	return &PageLinkReader{p: NewParser(r, "pagelinks")}
}

func (lr *PageLinkReader) Next() (PageLinkRow, error) {
	fields, err := lr.p.Next()
	if err != nil {
		return PageLinkRow{}, err
	}
	if len(fields) <= pagelinkColFromNamespace {
		return PageLinkRow{}, lr.p.malformed("pagelinks row has too few columns")
	}
	from, err := fields[pagelinkColFrom].Uint32()
	if err != nil {
		return PageLinkRow{}, lr.p.malformed("pl_from is not a u32")
	}
	ns, err := fields[pagelinkColNamespace].Int()
	if err != nil {
		return PageLinkRow{}, lr.p.malformed("pl_namespace is not an integer")
	}
	fromNS, err := fields[pagelinkColFromNamespace].Int()
	if err != nil {
		return PageLinkRow{}, lr.p.malformed("pl_from_namespace is not an integer")
	}
	return PageLinkRow{
		From:          from,
		FromNamespace: fromNS,
		Namespace:     ns,
		Title:         fields[pagelinkColTitle].Raw,
	}, nil
}
