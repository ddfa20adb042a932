// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/research-hub/pkg/types"
)

// TruncationMarker ends an entity excerpt that was cut at the limit.
const TruncationMarker = "[... truncated ...]"

// researchRecordsPerSource bounds how many findings of one source are listed.
const researchRecordsPerSource = 5

// BuildContext renders the model context for convID, or for the active
// conversation when convID is empty. Sections appear in this order:
// attached entities, research findings for those entities, recent messages
// of the conversation, then recent messages from other conversations not
// already present in this one. Empty sections are omitted.
//
// The research reader is called with the store lock held; it must not call
// back into the store.
func (s *Store) BuildContext(ctx context.Context, convID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *types.Conversation
	if convID != "" {
		i := s.indexLocked(convID)
		if i < 0 {
			return "", fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
		}
		current = &s.st.Conversations[i]
	} else if i := s.indexLocked(s.st.ActiveConversationID); i >= 0 {
		current = &s.st.Conversations[i]
	}

	var b strings.Builder

	if entities := s.st.GlobalProfile.Entities; len(entities) > 0 {
		b.WriteString("## Attached documents\n")
		for _, e := range entities {
			writeEntity(&b, e, s.limits.EntityExcerptLimit)
		}
	}

	if s.research != nil {
		if sets := s.research.GetMany(ctx, s.researchIDsLocked(current)); len(sets) > 0 {
			section(&b, "## Research findings")
			for _, rs := range sets {
				writeResultSet(&b, rs)
			}
		}
	}

	inCurrent := make(map[string]bool)
	if current != nil && len(current.Messages) > 0 {
		for _, m := range current.Messages {
			inCurrent[m.ID] = true
		}
		recent := current.Messages
		if n := len(recent) - s.limits.ContextMessages; n > 0 {
			recent = recent[n:]
		}
		section(&b, "## Current conversation")
		for _, m := range recent {
			writeMessage(&b, m)
		}
	}

	var others []types.Message
	global := s.st.GlobalProfile.Messages
	for i := len(global) - 1; i >= 0 && len(others) < s.limits.CrossConversationMessages; i-- {
		m := global[i]
		if inCurrent[m.ID] || (current != nil && m.ConversationID == current.ID) {
			continue
		}
		others = append(others, m)
	}
	if len(others) > 0 {
		section(&b, "## Earlier conversations")
		for i := len(others) - 1; i >= 0; i-- {
			writeMessage(&b, others[i])
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// researchIDsLocked lists the current conversation's entities first so
// their research wins when several entities cite the same source, then the
// remaining globally attached entities.
func (s *Store) researchIDsLocked(current *types.Conversation) []string {
	var ids []string
	if current != nil {
		ids = append(ids, current.EntityIDs...)
	}
	for _, e := range s.st.GlobalProfile.Entities {
		if !slices.Contains(ids, e.ID) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func section(b *strings.Builder, heading string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(heading)
	b.WriteString("\n")
}

func writeEntity(b *strings.Builder, e types.Entity, limit int) {
	fmt.Fprintf(b, "\n### %s\n", e.Name)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, e.Fields[k])
	}

	if content := strings.TrimSpace(e.Content); content != "" {
		b.WriteString("\n")
		b.WriteString(Excerpt(content, limit))
		b.WriteString("\n")
	}
}

func writeResultSet(b *strings.Builder, rs types.ResultSet) {
	fmt.Fprintf(b, "\n### %s", rs.Source)
	if q := rs.Query.Text(); q != "" {
		fmt.Fprintf(b, " (%s)", q)
	}
	b.WriteString("\n")
	for i, r := range rs.Records {
		if i == researchRecordsPerSource {
			fmt.Fprintf(b, "- and %d more\n", len(rs.Records)-i)
			break
		}
		fmt.Fprintf(b, "- %s", r.Title)
		if r.PublishedDate != nil {
			fmt.Fprintf(b, " (%d)", r.PublishedDate.Year())
		}
		fmt.Fprintf(b, " %s\n", r.URL)
	}
}

func writeMessage(b *strings.Builder, m types.Message) {
	label := "User"
	if m.Role == types.RoleAssistant {
		label = "Assistant"
	}
	fmt.Fprintf(b, "%s: %s\n", label, m.Content)
}

// Excerpt caps s at limit runes, appending TruncationMarker when cut.
func Excerpt(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "\n" + TruncationMarker
}
