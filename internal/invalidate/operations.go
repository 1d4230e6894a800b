// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package invalidate

// Operation is the closed set of domain events the invalidator translates
// into cache-key pattern deletes. Each variant carries exactly the
// parameters its pattern families need; the invalidator matches the set
// exhaustively, so adding a variant without a mapping fails to compile.
type Operation interface {
	// Name is the operation's wire/log identifier.
	Name() string

	isOperation()
}

// ContentCreated fires after a new content item is persisted.
type ContentCreated struct {
	ContentID string
	AuthorID  string
	Tags      []string
}

// ContentUpdated fires after an existing item is edited. OldTags and
// NewTags may differ; both tag families go stale. HotScoreChanged marks
// edits that moved the item's popularity score.
type ContentUpdated struct {
	ContentID       string
	AuthorID        string
	OldTags         []string
	NewTags         []string
	HotScoreChanged bool
}

// ContentDeleted fires after an item is soft-deleted.
type ContentDeleted struct {
	ContentID string
	AuthorID  string
	Tags      []string
}

// UserReacted fires on a like or dislike. Like distinguishes the two;
// only likes heat up the hot feed.
type UserReacted struct {
	UserID    string
	ContentID string
	Like      bool
}

// UserCommented fires after a comment is persisted.
type UserCommented struct {
	UserID    string
	ContentID string
}

// UserCollected fires when a user saves an item to a collection.
type UserCollected struct {
	UserID    string
	ContentID string
}

// UserFollowed fires on follow and unfollow; both parties' personalized
// state goes stale either way.
type UserFollowed struct {
	UserID   string
	TargetID string
	Followed bool
}

// UserActivityChanged fires when a user's aggregate activity profile is
// rebuilt.
type UserActivityChanged struct {
	UserID string
}

func (ContentCreated) Name() string      { return "content-created" }
func (ContentUpdated) Name() string      { return "content-updated" }
func (ContentDeleted) Name() string      { return "content-deleted" }
func (UserCommented) Name() string       { return "user-commented" }
func (UserCollected) Name() string       { return "user-collected" }
func (UserActivityChanged) Name() string { return "user-activity-changed" }

func (op UserReacted) Name() string {
	if op.Like {
		return "user-liked"
	}
	return "user-disliked"
}

func (op UserFollowed) Name() string {
	if op.Followed {
		return "user-followed"
	}
	return "user-unfollowed"
}

func (ContentCreated) isOperation()      {}
func (ContentUpdated) isOperation()      {}
func (ContentDeleted) isOperation()      {}
func (UserReacted) isOperation()         {}
func (UserCommented) isOperation()       {}
func (UserCollected) isOperation()       {}
func (UserFollowed) isOperation()        {}
func (UserActivityChanged) isOperation() {}
