// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package invalidate

import (
	"fmt"

	"github.com/goccy/go-json"
)

// opParams is the superset of operation parameters accepted on the
// wire. Each operation name picks the fields it needs.
type opParams struct {
	ContentID       string   `json:"contentId"`
	AuthorID        string   `json:"authorId"`
	Tags            []string `json:"tags"`
	OldTags         []string `json:"oldTags"`
	NewTags         []string `json:"newTags"`
	HotScoreChanged bool     `json:"hotScoreChanged"`
	UserID          string   `json:"userId"`
	TargetID        string   `json:"targetId"`
}

// DecodeOperation reconstructs an Operation from its wire name and a
// JSON parameter object. The manual invalidation endpoint feeds this.
func DecodeOperation(name string, params []byte) (Operation, error) {
	var p opParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode operation params: %w", err)
		}
	}

	switch name {
	case "content-created":
		return ContentCreated{ContentID: p.ContentID, AuthorID: p.AuthorID, Tags: p.Tags}, nil
	case "content-updated":
		return ContentUpdated{
			ContentID:       p.ContentID,
			AuthorID:        p.AuthorID,
			OldTags:         p.OldTags,
			NewTags:         p.NewTags,
			HotScoreChanged: p.HotScoreChanged,
		}, nil
	case "content-deleted":
		return ContentDeleted{ContentID: p.ContentID, AuthorID: p.AuthorID, Tags: p.Tags}, nil
	case "user-liked":
		return UserReacted{UserID: p.UserID, ContentID: p.ContentID, Like: true}, nil
	case "user-disliked":
		return UserReacted{UserID: p.UserID, ContentID: p.ContentID, Like: false}, nil
	case "user-commented":
		return UserCommented{UserID: p.UserID, ContentID: p.ContentID}, nil
	case "user-collected":
		return UserCollected{UserID: p.UserID, ContentID: p.ContentID}, nil
	case "user-followed":
		return UserFollowed{UserID: p.UserID, TargetID: p.TargetID, Followed: true}, nil
	case "user-unfollowed":
		return UserFollowed{UserID: p.UserID, TargetID: p.TargetID, Followed: false}, nil
	case "user-activity-changed":
		return UserActivityChanged{UserID: p.UserID}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", name)
	}
}
