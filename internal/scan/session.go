package scan

import (
	"strings"
	"time"
)

// Admission is the guard's verdict on an incoming code
type Admission string

const (
	// Admitted codes proceed to lookup
	Admitted Admission = "admitted"
	// Throttled scans arrived inside the minimum interval and are dropped silently
	Throttled Admission = "throttled"
	// Duplicate codes are already pending in this session
	Duplicate Admission = "duplicate"
	// Repeated codes match the last successful code and are dropped silently
	Repeated Admission = "repeated"
)

// Item is a scanned code held in a session before it is persisted
type Item struct {
	Code         string    `json:"code"`
	SKU          *string   `json:"sku"`
	Product      *string   `json:"product"`
	Quantity     *int      `json:"quantity"`
	Organization *string   `json:"organization"`
	SalesNum     *int64    `json:"sales_num"`
	DeliDate     *string   `json:"deli_date"`
	EstiTime     *int      `json:"esti_time"`
	Name         *string   `json:"name,omitempty"`
	Status       string    `json:"status,omitempty"`
	Existing     bool      `json:"existing"`
	IsNew        bool      `json:"is_new"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Options describes a new session
type Options struct {
	Workflow      string
	Operator      string
	Area          string
	SkipArea      bool
	Mass          bool
	MinInterval   time.Duration
	AllowOverride bool
	// DropRepeated silently drops a scan of the last successful code
	DropRepeated bool
}

// Session is the per-operator scan state: the pending list and the guard.
// It is not safe for concurrent use; Registry.Use serializes access.
type Session struct {
	ID            string
	Workflow      string
	Operator      string
	Area          string
	SkipArea      bool
	Mass          bool
	MinInterval   time.Duration
	AllowOverride bool
	DropRepeated  bool
	CreatedAt     time.Time
	LastActivity  time.Time

	lastScan    time.Time
	lastCode    string
	lastSuccess string
	timerStart  time.Time
	items       []Item
	index       map[string]int
}

// NewSession creates an empty session
func NewSession(id string, opts Options, now time.Time) *Session {
	return &Session{
		ID:            id,
		Workflow:      opts.Workflow,
		Operator:      opts.Operator,
		Area:          opts.Area,
		SkipArea:      opts.SkipArea,
		Mass:          opts.Mass,
		MinInterval:   opts.MinInterval,
		AllowOverride: opts.AllowOverride,
		DropRepeated:  opts.DropRepeated,
		CreatedAt:     now,
		LastActivity:  now,
		index:         make(map[string]int),
	}
}

// Admit applies the debounce and the pending-set check to code
func (s *Session) Admit(code string, now time.Time) Admission {
	s.LastActivity = now

	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < s.MinInterval {
		if code == s.lastCode || s.Contains(code) {
			return Duplicate
		}
		return Throttled
	}
	s.lastScan = now
	s.lastCode = code

	if s.Contains(code) {
		return Duplicate
	}
	if s.DropRepeated && code == s.lastSuccess {
		return Repeated
	}
	return Admitted
}

// MarkSuccess records code as the last successfully processed code
func (s *Session) MarkSuccess(code string) {
	s.lastSuccess = code
}

// Contains reports whether code is pending
func (s *Session) Contains(code string) bool {
	_, ok := s.index[code]
	return ok
}

// Add appends item to the pending list. It returns false for a code already pending.
func (s *Session) Add(item Item) bool {
	if s.Contains(item.Code) {
		return false
	}
	if len(s.items) == 0 {
		s.timerStart = item.ScannedAt
	}
	s.index[item.Code] = len(s.items)
	s.items = append(s.items, item)
	s.lastSuccess = item.Code
	return true
}

// Merge adds every item whose code is not pending yet and returns how many were added
func (s *Session) Merge(items []Item) int {
	added := 0
	for _, item := range items {
		if s.Add(item) {
			added++
		}
	}
	return added
}

// Remove drops code from the pending list
func (s *Session) Remove(code string) bool {
	i, ok := s.index[code]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	if s.lastSuccess == code {
		s.lastSuccess = ""
	}
	if len(s.items) == 0 {
		s.timerStart = time.Time{}
	}
	return true
}

// SetEstiTime edits the estimated minutes of a pending code; nil clears it
func (s *Session) SetEstiTime(code string, minutes *int) bool {
	i, ok := s.index[code]
	if !ok {
		return false
	}
	s.items[i].EstiTime = minutes
	return true
}

// Items returns a copy of the pending list in scan order
func (s *Session) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Codes returns the pending codes in scan order
func (s *Session) Codes() []string {
	out := make([]string, len(s.items))
	for i, item := range s.items {
		out[i] = item.Code
	}
	return out
}

// Len returns the number of pending items
func (s *Session) Len() int {
	return len(s.items)
}

// MissingEstiTime returns the 1-based rows without an estimated time
func (s *Session) MissingEstiTime() []int {
	var rows []int
	for i, item := range s.items {
		if item.EstiTime == nil {
			rows = append(rows, i+1)
		}
	}
	return rows
}

// Counters splits the pending codes into MEL (prefix "4") and the rest
func (s *Session) Counters() (mel, others int) {
	for _, item := range s.items {
		if strings.HasPrefix(item.Code, "4") {
			mel++
		} else {
			others++
		}
	}
	return mel, others
}

// Elapsed is the time since the first pending item was scanned
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.timerStart.IsZero() {
		return 0
	}
	return now.Sub(s.timerStart)
}

// Clear empties the pending list and resets the timer
func (s *Session) Clear() {
	s.items = nil
	s.index = make(map[string]int)
	s.timerStart = time.Time{}
	s.lastSuccess = ""
}

func (s *Session) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.Code] = i
	}
}

// View is the JSON snapshot of a session
type View struct {
	ID            string    `json:"id"`
	Workflow      string    `json:"workflow"`
	Operator      string    `json:"operator"`
	Area          string    `json:"area"`
	SkipArea      bool      `json:"skip_area"`
	Mass          bool      `json:"mass"`
	AllowOverride bool      `json:"allow_override"`
	Items         []Item    `json:"items"`
	Total         int       `json:"total"`
	MelCount      int       `json:"mel_count"`
	OtherCount    int       `json:"other_count"`
	ElapsedSecs   int64     `json:"elapsed_seconds"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Snapshot renders the session for responses
func (s *Session) Snapshot(now time.Time) View {
	mel, others := s.Counters()
	return View{
		ID:            s.ID,
		Workflow:      s.Workflow,
		Operator:      s.Operator,
		Area:          s.Area,
		SkipArea:      s.SkipArea,
		Mass:          s.Mass,
		AllowOverride: s.AllowOverride,
		Items:         s.Items(),
		Total:         len(s.items),
		MelCount:      mel,
		OtherCount:    others,
		ElapsedSecs:   int64(s.Elapsed(now).Seconds()),
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
	}
}
