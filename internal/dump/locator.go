package dump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ErrNoCompleteDump is returned when no dump date within the lookback window
// has all required jobs finished.
var ErrNoCompleteDump = errors.New("no complete dump found")

// OldestDump bounds how many days back FindLatest will probe for a dump.
const OldestDump = 60

// DefaultBaseURL is the official Wikimedia dump mirror.
const DefaultBaseURL = "https://dumps.wikimedia.org"

// requiredJobs are the dumpstatus.json jobs the build pipeline consumes.
// pagelinkstable is the legacy full-form pagelinks dump.
var requiredJobs = []string{"pagetable", "redirecttable", "pagelinkstable"}

// DumpStatus is the decoded subset of dumpstatus.json we care about.
type DumpStatus struct {
	Jobs    map[string]JobStatus `json:"jobs"`
	Version string               `json:"version"`

	// DumpDate is filled in by the locator, not present in the document.
	DumpDate string `json:"-"`
}

type JobStatus struct {
	Status  string                  `json:"status"`
	Updated string                  `json:"updated"`
	Files   map[string]DumpFileInfo `json:"files"`
}

type DumpFileInfo struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
	MD5  string `json:"md5"`
	SHA1 string `json:"sha1"`
}

func (j JobStatus) Done() bool { return j.Status == "done" }

// Complete reports whether every required job is done.
func (s *DumpStatus) Complete() bool {
	for _, name := range requiredJobs {
		job, ok := s.Jobs[name]
		if !ok || !job.Done() {
			return false
		}
	}
	return true
}

// FileURLs returns the absolute URL of each required job's dump file, keyed
// by job name. Jobs publish exactly one .sql.gz file each for the tables we
// consume.
func (s *DumpStatus) FileURLs(baseURL string) map[string]string {
	urls := make(map[string]string, len(requiredJobs))
	for _, name := range requiredJobs {
		for _, info := range s.Jobs[name].Files {
			urls[name] = baseURL + info.URL
			break
		}
	}
	return urls
}

// Locator discovers the most recent complete dump for one wiki.
type Locator struct {
	Client  *http.Client
	BaseURL string
	Wiki    string

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewLocator(wiki string) *Locator {
	return &Locator{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: DefaultBaseURL,
		Wiki:    wiki,
	}
}

// FindLatest walks dates descending from today and returns the status of the
// first date whose required jobs are all done. Incomplete or missing dates
// are skipped; ErrNoCompleteDump is returned after OldestDump days.
func (l *Locator) FindLatest(ctx context.Context) (*DumpStatus, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	day := now().UTC()
	for i := 0; i < OldestDump; i++ {
		date := day.AddDate(0, 0, -i).Format("20060102")
		status, err := l.StatusForDate(ctx, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("dump locator: %s: %v", date, err)
			continue
		}
		if status.Complete() {
			log.Printf("dump locator: found complete dump %s", date)
			return status, nil
		}
		log.Printf("dump locator: dump %s incomplete", date)
	}
	return nil, ErrNoCompleteDump
}

// StatusForDate fetches and decodes dumpstatus.json for one date.
func (l *Locator) StatusForDate(ctx context.Context, date string) (*DumpStatus, error) {
	url := fmt.Sprintf("%s/%s/%s/dumpstatus.json", l.BaseURL, l.Wiki, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	var status DumpStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	status.DumpDate = date
	return &status, nil
}
