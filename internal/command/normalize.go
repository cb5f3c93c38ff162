package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ldi/taskline/pkg/models"
	"github.com/spf13/cast"
)

var (
	additionTextKeys = []string{"task", "text", "name"}
	parentKeys       = []string{"parentTask", "parent_task", "parent"}
	dependsOnKeys    = []string{"dependsOn", "depends_on", "dependency"}
	dueDateKeys      = []string{"dueDate", "due_date", "due"}
	identifierKeys   = []string{"identifier", "task", "target"}
	newTextKeys      = []string{"text", "newText", "new_text"}
)

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// Parse decodes an oracle response. Blank input is an empty batch, not an error.
func Parse(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// Normalize converts the raw oracle payload into a canonical Batch. It never
// fails: unknown enum values fall back to defaults and entries without a
// task reference are counted in Discarded.
func Normalize(raw map[string]any) Batch {
	b := Batch{
		Additions: []Addition{},
		Removals:  []Removal{},
		Updates:   []Update{},
	}

	for _, item := range entries(raw, "additions") {
		a, ok := normalizeAddition(item)
		if !ok {
			b.Discarded++
			continue
		}
		b.Additions = append(b.Additions, a)
	}
	for _, item := range entries(raw, "removals") {
		ref := referenceOf(item, additionTextKeys)
		if ref == "" {
			b.Discarded++
			continue
		}
		b.Removals = append(b.Removals, Removal{Ref: ref})
	}
	for _, item := range entries(raw, "updates") {
		u, ok := normalizeUpdate(item)
		if !ok {
			b.Discarded++
			continue
		}
		b.Updates = append(b.Updates, u)
	}
	return b
}

func normalizeAddition(item any) (Addition, bool) {
	text := referenceOf(item, additionTextKeys)
	if text == "" {
		return Addition{}, false
	}
	a := Addition{Text: text, Recurrence: models.RecurrenceNone}

	m, ok := item.(map[string]any)
	if !ok {
		return a, true
	}
	if v, ok := lookup(m, parentKeys); ok {
		a.Parent = trimmed(v)
	}
	if v, ok := lookup(m, dependsOnKeys); ok {
		a.DependsOn = trimmed(v)
	}
	if v, ok := lookup(m, []string{"recurrence"}); ok {
		a.Recurrence, _ = models.ParseRecurrence(cast.ToString(v))
	}
	if v, ok := lookup(m, dueDateKeys); ok {
		if due, ok := parseDate(v); ok {
			a.DueAt = &due
		}
	}
	return a, true
}

func normalizeUpdate(item any) (Update, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Update{}, false
	}
	ref := ""
	if v, ok := lookup(m, identifierKeys); ok {
		ref = trimmed(v)
	}
	if ref == "" {
		return Update{}, false
	}
	u := Update{Ref: ref}

	// "task" doubles as the identifier key, so it never means new text.
	if v, ok := lookup(m, newTextKeys); ok && v != nil {
		if text := trimmed(v); text != "" {
			u.Text = models.Set(text)
		}
	}
	if v, ok := lookup(m, []string{"status"}); ok && v != nil {
		status, _ := models.ParseStatus(cast.ToString(v))
		u.Status = models.Set(status)
		u.Completed = models.Set(status == models.TaskStatusDone)
	}
	// An explicit completed flag wins over status. Status follows it so the
	// two stay coupled: completing means Done, reopening a Done (or
	// unmentioned) status means To Do.
	if v, ok := lookup(m, []string{"completed"}); ok && v != nil {
		if done, err := cast.ToBoolE(v); err == nil {
			u.Completed = models.Set(done)
			status, hasStatus := u.Status.Value()
			switch {
			case done:
				u.Status = models.Set(models.TaskStatusDone)
			case !hasStatus || status == models.TaskStatusDone:
				u.Status = models.Set(models.TaskStatusToDo)
			}
		}
	}
	if v, ok := lookup(m, []string{"priority"}); ok && v != nil {
		priority, _ := models.ParsePriority(cast.ToString(v))
		u.Priority = models.Set(priority)
	}
	if v, ok := lookup(m, []string{"assignee"}); ok {
		if name := trimmed(v); name != "" {
			u.Assignee = models.Set(name)
		} else {
			u.Assignee = models.Cleared[string]()
		}
	}
	if v, ok := lookup(m, []string{"tags"}); ok {
		if tags := toTags(v); len(tags) > 0 {
			u.Tags = models.Set(tags)
		} else {
			u.Tags = models.Cleared[[]string]()
		}
	}
	if v, ok := lookup(m, []string{"notes"}); ok {
		if v == nil {
			u.Notes = models.Cleared[string]()
		} else {
			u.Notes = models.Set(cast.ToString(v))
		}
	}
	if v, ok := lookup(m, []string{"recurrence"}); ok && v != nil {
		rule, _ := models.ParseRecurrence(cast.ToString(v))
		u.Recurrence = models.Set(rule)
	}
	if v, ok := lookup(m, dueDateKeys); ok {
		if v == nil || trimmed(v) == "" {
			u.DueAt = models.Cleared[time.Time]()
		} else if due, ok := parseDate(v); ok {
			u.DueAt = models.Set(due)
		}
	}
	if v, ok := lookup(m, dependsOnKeys); ok {
		if ref := trimmed(v); ref != "" {
			u.DependsOn = models.Set(ref)
		} else {
			u.DependsOn = models.Cleared[string]()
		}
	}
	return u, true
}

// entries returns raw[key] as a list. A single object is treated as a
// one-element list; anything else is empty.
func entries(raw map[string]any, key string) []any {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []any:
		return list
	case []map[string]any:
		out := make([]any, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out
	case map[string]any:
		return []any{list}
	}
	return nil
}

// referenceOf accepts either a bare string or an object carrying one of keys.
func referenceOf(item any, keys []string) string {
	switch v := item.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if ref, ok := lookup(v, keys); ok {
			return trimmed(ref)
		}
	}
	return ""
}

// lookup returns the first key present in m, so that an explicit null is
// distinguishable from a missing key.
func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func trimmed(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func toTags(v any) []string {
	var tags []string
	if s, ok := v.(string); ok {
		tags = strings.Split(s, ",")
	} else {
		tags = cast.ToStringSlice(v)
	}

	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func parseDate(v any) (time.Time, bool) {
	s := trimmed(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
