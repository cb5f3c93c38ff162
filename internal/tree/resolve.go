package tree

import "github.com/ldi/taskline/pkg/models"

// FindByText returns the first task, depth-first, whose text equals text
// exactly. Text is not unique; callers get the first match in traversal
// order. It returns nil when nothing matches.
func (s *Snapshot) FindByText(text string) *models.Task {
	if s.textIndex == nil {
		s.textIndex = make(map[string]*models.Task, len(s.byID))
		s.Walk(func(t *models.Task, _ int) bool {
			if _, seen := s.textIndex[t.Text]; !seen {
				s.textIndex[t.Text] = t
			}
			return true
		})
	}
	return s.textIndex[text]
}

// FindByShareToken searches the tree for the task carrying token and
// returns it with its subtree, or nil.
func (s *Snapshot) FindByShareToken(token string) *models.Task {
	if token == "" {
		return nil
	}
	var found *models.Task
	s.Walk(func(t *models.Task, _ int) bool {
		if t.ShareToken != nil && *t.ShareToken == token {
			found = t
			return false
		}
		return true
	})
	return found
}
