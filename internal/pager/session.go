package pager

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/brandon/mailmirror/pkg/types"
)

// pageCacheSize bounds the per-session page cache.
const pageCacheSize = 8

// Session is the ephemeral viewing state of one focused folder+account pair.
// It is created on focus gain and discarded on focus loss; its page cache is
// owned by the session and dies with it, never shared across focus epochs.
type Session struct {
	ID      string
	Account string
	Folder  string

	page     int
	pageSize int

	viewTop    int
	viewHeight int
	pageLen    int

	lastRendered map[uint32]struct{}
	pages        *lru.Cache[int, []types.Message]

	focusedAt time.Time
	lastFire  time.Time
}

// newSession creates the session for a freshly focused pair. lru.New only
// errors on a non-positive size.
func newSession(account, folder string, pageSize, viewHeight int, now time.Time) *Session {
	pages, _ := lru.New[int, []types.Message](pageCacheSize)
	return &Session{
		ID:           uuid.NewString(),
		Account:      account,
		Folder:       folder,
		page:         1,
		pageSize:     pageSize,
		viewHeight:   viewHeight,
		lastRendered: make(map[uint32]struct{}),
		pages:        pages,
		focusedAt:    now,
		lastFire:     now,
	}
}

// Page returns the current 1-based page index.
func (s *Session) Page() int {
	return s.page
}

// PageSize returns the session's page size.
func (s *Session) PageSize() int {
	return s.pageSize
}

// SetPage moves to a page and resets the viewport to its top.
func (s *Session) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	if page != s.page {
		s.page = page
		s.viewTop = 0
		s.pageLen = 0
	}
}

// Offset returns the store offset of a 1-based page.
func (s *Session) Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * s.pageSize
}

// CachePage remembers a rendered page so paging back does not refetch.
func (s *Session) CachePage(page int, messages []types.Message) {
	s.pages.Add(page, messages)
}

// CachedPage returns a previously rendered page, if still cached.
func (s *Session) CachedPage(page int) ([]types.Message, bool) {
	return s.pages.Get(page)
}

// Render records the rendered message set: the viewport length and the UID
// set used for new-message diffing on the next render.
func (s *Session) Render(messages []types.Message) {
	s.pageLen = len(messages)
	if s.viewTop > s.maxViewTop() {
		s.viewTop = s.maxViewTop()
	}
	s.lastRendered = make(map[uint32]struct{}, len(messages))
	for i := range messages {
		s.lastRendered[messages[i].UID] = struct{}{}
	}
}

// DiffNew returns how many of the given messages were absent from the last
// rendered UID set.
func (s *Session) DiffNew(messages []types.Message) int {
	count := 0
	for i := range messages {
		if _, ok := s.lastRendered[messages[i].UID]; !ok {
			count++
		}
	}
	return count
}

// ScrollDown moves the viewport down by n rows within the current page,
// clamped so the window never runs past the page. No fetch is issued.
func (s *Session) ScrollDown(n int) {
	s.viewTop += n
	if s.viewTop > s.maxViewTop() {
		s.viewTop = s.maxViewTop()
	}
}

// ScrollUp moves the viewport up by n rows, clamped to the page top.
func (s *Session) ScrollUp(n int) {
	s.viewTop -= n
	if s.viewTop < 0 {
		s.viewTop = 0
	}
}

// VisibleRange returns the [start, end) row window of the current page.
func (s *Session) VisibleRange() (start, end int) {
	start = s.viewTop
	end = s.viewTop + s.viewHeight
	if end > s.pageLen {
		end = s.pageLen
	}
	if start > end {
		start = end
	}
	return start, end
}

func (s *Session) maxViewTop() int {
	max := s.pageLen - s.viewHeight
	if max < 0 {
		max = 0
	}
	return max
}
