package models

import "time"

// Priority bounds for knowledge items and tasks. 1 is highest.
const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// KnowledgeItem is an immutable-after-publish fact in a space.
// Once published it is queryable until ExpiresAt (if set), after which
// it is absent from all reads.
type KnowledgeItem struct {
	ID            string         `json:"id"`
	Space         Space          `json:"space"`
	AgentID       string         `json:"agent_id"`
	TaskID        string         `json:"task_id,omitempty"`
	KnowledgeType string         `json:"knowledge_type"`
	Content       map[string]any `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      int            `json:"priority"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// Expired reports whether the item is past its expiry at the given instant.
func (k *KnowledgeItem) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// HasAllTags reports whether every requested tag is present in the
// item's tag set (subset semantics).
func (k *KnowledgeItem) HasAllTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range k.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// KnowledgeQuery is the filter set accepted by the store's query operation.
type KnowledgeQuery struct {
	Space         Space
	KnowledgeType string
	AgentID       string
	Tags          []string
	Limit         int
}
