package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials identify the application and the account for one attempt.
type Credentials struct {
	AppID     int
	AppSecret string
	Phone     string
}

// ValidationError reports input rejected before any connection is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseCredentials builds Credentials from raw text fields, as typed by the user
// or read from the settings file.
func ParseCredentials(appID, appSecret, phone string) (Credentials, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return Credentials{}, &ValidationError{Field: "api_id", Message: "is empty"}
	}
	id, err := strconv.Atoi(appID)
	if err != nil {
		return Credentials{}, &ValidationError{Field: "api_id", Message: "must be a number"}
	}
	c := Credentials{
		AppID:     id,
		AppSecret: strings.TrimSpace(appSecret),
		Phone:     strings.TrimSpace(phone),
	}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Validate checks that every field is present and the app id is positive.
func (c Credentials) Validate() error {
	if c.AppID <= 0 {
		return &ValidationError{Field: "api_id", Message: "must be a positive integer"}
	}
	if c.AppSecret == "" {
		return &ValidationError{Field: "api_hash", Message: "is empty"}
	}
	if c.Phone == "" {
		return &ValidationError{Field: "phone", Message: "is empty"}
	}
	return nil
}

// Identity is the account the remote side reports for "who am I".
type Identity struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Premium   bool
}

// DisplayName returns "First Last", trimmed.
func (i Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// ConversationKind is the kind of a send target.
type ConversationKind int

const (
	KindDirect ConversationKind = iota
	KindGroup
	KindSupergroup
)

func (k ConversationKind) String() string {
	switch k {
	case KindDirect:
		return "Direct"
	case KindGroup:
		return "Group"
	case KindSupergroup:
		return "Supergroup"
	default:
		return "Unknown"
	}
}

// Conversation is one eligible send target.
type Conversation struct {
	ID          int64
	DisplayName string
	Kind        ConversationKind
	Username    string
	CanSend     bool
}

// PeerKind is the raw kind reported by the remote dialog list.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerBot
	PeerChat
	PeerMegagroup
	PeerBroadcast
)

// RawDialog is one entry of the remote dialog list before filtering.
type RawDialog struct {
	ID         int64
	Kind       PeerKind
	FirstName  string
	LastName   string
	Username   string
	Title      string
	Self       bool
	Support    bool
	Verified   bool
	Deleted    bool
	Restricted bool
	CanSend    bool
}

// Metadata describes a media file. Zero values mean "unknown".
type Metadata struct {
	Duration time.Duration
	Width    int
	Height   int
}

// HasResolution reports whether both dimensions are known.
func (m Metadata) HasResolution() bool {
	return m.Width > 0 && m.Height > 0
}

// UploadItem is one file of a batch, derived when the batch starts.
type UploadItem struct {
	SourcePath  string
	FileName    string
	DisplayName string
	Size        int64
	Metadata    Metadata
}
