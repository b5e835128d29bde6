package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/pkg/errors"
)

// Workflow names
const (
	Assign  = "assign"
	Qualify = "qualify"
	Deliver = "deliver"
	Print   = "print"
)

// ErrUnknownWorkflow is returned for a workflow name with no profile
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Profile is the ruleset one scanning station applies to a code
type Profile struct {
	Name        string
	MinInterval time.Duration

	// CutGate requires the corte step to be recorded before a code is accepted
	CutGate bool
	// AutoCreate inserts codes known only to the labels store
	AutoCreate bool
	// AnyExistingDone treats every existing row as already handled
	AnyExistingDone bool
	// RequireAssignment rejects codes that are not in the primary store yet
	RequireAssignment bool
	// Rating asks for accept or report on each code outside mass mode
	Rating bool

	DoneStatuses    []string
	BlockedStatuses []string
	RequiredStatus  string
	AllowOverride   bool

	TargetStatus        string
	LegacyPersonnelScan bool
	// DropRepeated ignores a rescan of the last successfully processed code
	DropRepeated bool
}

// Verdict is what a profile makes of a row that already exists in the primary store
type Verdict string

const (
	VerdictProceed      Verdict = "proceed"
	VerdictDone         Verdict = "done"
	VerdictBlocked      Verdict = "blocked"
	VerdictNotQualified Verdict = "not_qualified"
)

// Evaluate applies the profile to an existing row's status.
// override skips the required-status check where the profile allows it.
func (p Profile) Evaluate(status string, override bool) Verdict {
	if p.AnyExistingDone {
		return VerdictDone
	}
	if contains(p.DoneStatuses, status) {
		return VerdictDone
	}
	if contains(p.BlockedStatuses, status) {
		return VerdictBlocked
	}
	if p.RequiredStatus != "" && status != p.RequiredStatus {
		if override && p.AllowOverride {
			return VerdictProceed
		}
		return VerdictNotQualified
	}
	return VerdictProceed
}

// Defaults returns the built-in profile of every station
func Defaults() map[string]Profile {
	return map[string]Profile{
		Assign: {
			Name:                Assign,
			MinInterval:         500 * time.Millisecond,
			CutGate:             true,
			AnyExistingDone:     true,
			TargetStatus:        models.StatusAssigned,
			LegacyPersonnelScan: true,
			DropRepeated:        true,
		},
		Qualify: {
			Name:         Qualify,
			MinInterval:  2000 * time.Millisecond,
			AutoCreate:   true,
			Rating:       true,
			DoneStatuses: []string{models.StatusQualified},
			TargetStatus: models.StatusQualified,
		},
		Deliver: {
			Name:              Deliver,
			MinInterval:       1500 * time.Millisecond,
			BlockedStatuses:   []string{models.StatusReported},
			RequiredStatus:    models.StatusQualified,
			AllowOverride:     true,
			RequireAssignment: true,
			TargetStatus:      models.StatusDelivered,
		},
		Print: {
			Name:              Print,
			MinInterval:       2000 * time.Millisecond,
			DoneStatuses:      []string{models.StatusQualified},
			RequireAssignment: true,
			Rating:            true,
			TargetStatus:      models.StatusPendingQualify,
		},
	}
}

// Set is the resolved profile table
type Set struct {
	profiles map[string]Profile
}

// NewSet builds the profile table, applying configured overrides on top of the defaults
func NewSet(overrides map[string]config.WorkflowConfig) (*Set, error) {
	profiles := Defaults()

	for name, o := range overrides {
		key := strings.ToLower(name)
		p, ok := profiles[key]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownWorkflow, "workflow override %q", name)
		}
		if o.MinInterval > 0 {
			p.MinInterval = o.MinInterval
		}
		if o.LegacyPersonnelScan != nil {
			p.LegacyPersonnelScan = *o.LegacyPersonnelScan
		}
		if o.AllowStatusOverride != nil {
			p.AllowOverride = *o.AllowStatusOverride
		}
		profiles[key] = p
	}

	return &Set{profiles: profiles}, nil
}

// Get returns the named profile
func (s *Set) Get(name string) (Profile, error) {
	p, ok := s.profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, errors.Wrapf(ErrUnknownWorkflow, "%q", name)
	}
	return p, nil
}

// Names lists the configured workflows
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
