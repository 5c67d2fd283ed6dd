// ABOUTME: Store interface and entity types for podium persistence
// ABOUTME: Accounts, conferences, profiles, questions, polls and the Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCode is returned when creating a conference whose code is taken.
var ErrDuplicateCode = errors.New("conference code already exists")

// ErrDuplicateVote is returned when a voter already has a recorded vote
// anywhere in the poll. The check and the insert are one atomic operation.
var ErrDuplicateVote = errors.New("voter already voted in this poll")

// Global account roles.
const (
	RolePlain        = "plain"
	RoleAdminCapable = "admin_capable"
	RoleMainAdmin    = "main_admin"
)

// Profile role tags.
const (
	TagSpeaker     = "speaker"
	TagInvestor    = "investor"
	TagParticipant = "participant"
	TagOrganizer   = "organizer"
)

// Question statuses.
const (
	QuestionPending  = "pending"
	QuestionApproved = "approved"
	QuestionRejected = "rejected"
)

// Conference access modes.
const (
	AccessPublic  = "public"
	AccessPrivate = "private"
)

// Account maps an external chat identity to a local user.
// Identity is immutable; display fields are not.
type Account struct {
	ID          string
	ExternalID  string
	DisplayName string
	Role        string // plain, admin_capable, main_admin
	CreatedAt   time.Time
}

// Conference is one event with its lifecycle flags and admin set.
// Code is the short human-typeable join identifier, globally unique and
// immutable. Ended is terminal.
type Conference struct {
	ID          string
	Code        string
	Title       string
	Description string
	Access      string // public, private
	StartsAt    *time.Time
	EndsAt      *time.Time
	Active      bool
	Ended       bool
	Admins      []string // profile IDs, insertion order
	SlideURL    *string
	SlideTitle  *string
	CreatedBy   string // account ID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the profile id is in the conference's admin set.
func (c *Conference) IsAdmin(profileID string) bool {
	for _, id := range c.Admins {
		if id == profileID {
			return true
		}
	}
	return false
}

// Profile is the per-(account, conference) participant record.
type Profile struct {
	ID           string
	AccountID    string
	ConferenceID string
	Name         string
	Interests    []string
	Offerings    []string
	LookingFor   []string
	Roles        []string // speaker, investor, participant, organizer
	Onboarded    bool
	CreatedAt    time.Time
}

// HasRole reports whether the profile carries the given role tag.
func (p *Profile) HasRole(tag string) bool {
	for _, r := range p.Roles {
		if r == tag {
			return true
		}
	}
	return false
}

// Question is an audience question in the moderation pipeline.
// AuthorProfileID is nil for anonymous questions. TargetProfileID is nil for
// questions addressed to all speakers. Questions are never deleted.
type Question struct {
	ID              string
	ConferenceID    string
	AuthorProfileID *string
	TargetProfileID *string
	Text            string
	Status          string // pending, approved, rejected
	Answer          *string
	AnsweredBy      *string // profile ID of the answering speaker
	Answered        bool
	CreatedAt       time.Time
}

// PollOption is one choice in a poll. IDs are small integers assigned
// 0-based in input order at creation and stable thereafter.
type PollOption struct {
	ID     int
	Text   string
	Voters []string // account IDs
}

// Poll is a live audience poll.
type Poll struct {
	ID           string
	ConferenceID string
	Question     string
	Options      []PollOption
	Active       bool
	CreatedAt    time.Time
}

// VoterOption returns the option id the account voted for, or -1.
func (p *Poll) VoterOption(accountID string) int {
	for _, opt := range p.Options {
		for _, v := range opt.Voters {
			if v == accountID {
				return opt.ID
			}
		}
	}
	return -1
}

// Store is the persistence contract for all podium entities.
type Store interface {
	// Accounts
	UpsertAccount(ctx context.Context, externalID, displayName string) (*Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error)
	SetAccountRole(ctx context.Context, id, role string) error

	// Conferences
	CreateConference(ctx context.Context, conf *Conference) error
	GetConference(ctx context.Context, id string) (*Conference, error)
	GetConferenceByCode(ctx context.Context, code string) (*Conference, error)
	UpdateConference(ctx context.Context, conf *Conference) error
	ListConferences(ctx context.Context, limit int) ([]*Conference, error)
	// DeleteConference removes the conference and cascades to its
	// profiles, questions and polls.
	DeleteConference(ctx context.Context, id string) error

	// Profiles
	CreateProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByAccount(ctx context.Context, accountID, conferenceID string) (*Profile, error)
	UpdateProfile(ctx context.Context, profile *Profile) error
	ListProfiles(ctx context.Context, conferenceID string) ([]*Profile, error)

	// Questions
	CreateQuestion(ctx context.Context, q *Question) error
	GetQuestion(ctx context.Context, id string) (*Question, error)
	UpdateQuestion(ctx context.Context, q *Question) error
	// ListQuestions returns the conference's questions with the given
	// status, ordered by (created_at, id) ascending.
	ListQuestions(ctx context.Context, conferenceID, status string) ([]*Question, error)
	// ListQuestionsForSpeaker returns approved, unanswered questions
	// addressed to the speaker or to all speakers.
	ListQuestionsForSpeaker(ctx context.Context, conferenceID, speakerProfileID string) ([]*Question, error)

	// Polls
	CreatePoll(ctx context.Context, poll *Poll) error
	GetPoll(ctx context.Context, id string) (*Poll, error)
	UpdatePoll(ctx context.Context, poll *Poll) error
	DeletePoll(ctx context.Context, id string) error
	ListPolls(ctx context.Context, conferenceID string, activeOnly bool) ([]*Poll, error)
	// RecordVote records the voter on one option of the poll. The
	// already-voted-anywhere check and the insert are a single atomic
	// operation; returns ErrDuplicateVote if the voter is present in any
	// option's voter set, ErrNotFound if the poll or option is missing.
	RecordVote(ctx context.Context, pollID string, optionID int, accountID string) error

	Close() error
}
