package domain

import (
	"errors"
	"strings"
	"time"
)

// Brief is the normalized intake record family root.
type Brief struct {
	ID             BriefID
	SourceRef      string
	ClientName     string
	NormalizedBody string
	CreatedAt      time.Time
}

func (b Brief) Validate() error {
	if !b.ID.Valid() {
		return errors.New("brief id is required")
	}
	if strings.TrimSpace(b.SourceRef) == "" {
		return errors.New("source ref is required")
	}
	if strings.TrimSpace(b.NormalizedBody) == "" {
		return errors.New("normalized body is required")
	}
	return nil
}

// IntakeRecord is a child row of a brief, one per intake channel fragment.
type IntakeRecord struct {
	ID         string
	BriefID    BriefID
	Channel    string
	RawExcerpt string
	CreatedAt  time.Time
}

// Strategy is produced from a brief by the synthesis collaborator.
type Strategy struct {
	ID          StrategyID
	BriefID     BriefID
	Headline    string
	Positioning string
	CreatedAt   time.Time
}

func (s Strategy) Validate() error {
	if !s.ID.Valid() {
		return errors.New("strategy id is required")
	}
	if !s.BriefID.Valid() {
		return errors.New("brief id is required")
	}
	if strings.TrimSpace(s.Headline) == "" {
		return errors.New("headline is required")
	}
	return nil
}

// Draft is the produced deliverable draft; bundles and assets hang off it.
type Draft struct {
	ID         DraftID
	StrategyID StrategyID
	Title      string
	Summary    string
	CreatedAt  time.Time
}

func (d Draft) Validate() error {
	if !d.ID.Valid() {
		return errors.New("draft id is required")
	}
	if !d.StrategyID.Valid() {
		return errors.New("strategy id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// DraftBundle groups assets of one kind under a draft.
type DraftBundle struct {
	ID        string
	DraftID   DraftID
	Kind      string
	CreatedAt time.Time
}

// DraftAsset is a single produced asset inside a bundle.
type DraftAsset struct {
	ID        string
	BundleID  string
	Name      string
	MediaType string
	CreatedAt time.Time
}

// QualityResult records one evaluation of a draft.
type QualityResult struct {
	ID        string
	DraftID   DraftID
	Score     float64
	Passed    bool
	CreatedAt time.Time
}

// QualityIssue is a child finding of a quality result.
type QualityIssue struct {
	ID        string
	ResultID  string
	Severity  string
	Detail    string
	CreatedAt time.Time
}

// DeliveryPackage is the packaged deliverable for a draft.
type DeliveryPackage struct {
	ID        PackageID
	DraftID   DraftID
	Label     string
	CreatedAt time.Time
}

func (p DeliveryPackage) Validate() error {
	if !p.ID.Valid() {
		return errors.New("package id is required")
	}
	if !p.DraftID.Valid() {
		return errors.New("draft id is required")
	}
	if strings.TrimSpace(p.Label) == "" {
		return errors.New("label is required")
	}
	return nil
}

// PackageArtifact is one packaged artifact row; ObjectKey points at the
// uploaded payload in the object store.
type PackageArtifact struct {
	ID        string
	PackageID PackageID
	Name      string
	ObjectKey string
	SizeBytes int64
	CreatedAt time.Time
}
