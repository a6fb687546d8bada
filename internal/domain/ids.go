package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Entity identifiers are opaque typed values. Each is produced by exactly
// one forward step and is never reused across runs.
type (
	RunID      string
	BriefID    string
	StrategyID string
	DraftID    string
	PackageID  string
)

func NewRunID() RunID           { return RunID(uuid.NewString()) }
func NewBriefID() BriefID       { return BriefID(uuid.NewString()) }
func NewStrategyID() StrategyID { return StrategyID(uuid.NewString()) }
func NewDraftID() DraftID       { return DraftID(uuid.NewString()) }
func NewPackageID() PackageID   { return PackageID(uuid.NewString()) }

func (id RunID) String() string      { return string(id) }
func (id BriefID) String() string    { return string(id) }
func (id StrategyID) String() string { return string(id) }
func (id DraftID) String() string    { return string(id) }
func (id PackageID) String() string  { return string(id) }

func (id RunID) Valid() bool      { return strings.TrimSpace(string(id)) != "" }
func (id BriefID) Valid() bool    { return strings.TrimSpace(string(id)) != "" }
func (id StrategyID) Valid() bool { return strings.TrimSpace(string(id)) != "" }
func (id DraftID) Valid() bool    { return strings.TrimSpace(string(id)) != "" }
func (id PackageID) Valid() bool  { return strings.TrimSpace(string(id)) != "" }
