// Package tree materializes the store's flat parent back-references into a
// nested, read-only snapshot and answers lookups against it.
package tree

import "github.com/ldi/taskline/pkg/models"

// Snapshot is an immutable view of the task hierarchy at one point in time.
// Build it once per read; never patch it to reflect later writes.
type Snapshot struct {
	Roots []*models.Task

	byID      map[string]*models.Task
	textIndex map[string]*models.Task
}

// Build links tasks into a tree. Siblings keep the order they have in
// tasks. A task whose parent is not in the list is treated as a root.
// The input tasks are copied; their Subtasks fields are not modified.
func Build(tasks []*models.Task) *Snapshot {
	s := &Snapshot{
		Roots: []*models.Task{},
		byID:  make(map[string]*models.Task, len(tasks)),
	}

	nodes := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		n := *t
		n.Subtasks = nil
		s.byID[n.ID] = &n
		nodes = append(nodes, &n)
	}

	for _, n := range nodes {
		if !n.IsTopLevel() {
			if parent, ok := s.byID[*n.ParentID]; ok && parent != n {
				parent.Subtasks = append(parent.Subtasks, n)
				continue
			}
		}
		s.Roots = append(s.Roots, n)
	}
	return s
}

// Get returns the task with the given ID, or nil.
func (s *Snapshot) Get(id string) *models.Task {
	return s.byID[id]
}

func (s *Snapshot) Len() int {
	return len(s.byID)
}

// Walk visits every task depth-first, parents before children, siblings in
// store order. Returning false from fn stops the walk.
func (s *Snapshot) Walk(fn func(t *models.Task, depth int) bool) {
	var visit func(tasks []*models.Task, depth int) bool
	visit = func(tasks []*models.Task, depth int) bool {
		for _, t := range tasks {
			if !fn(t, depth) {
				return false
			}
			if !visit(t.Subtasks, depth+1) {
				return false
			}
		}
		return true
	}
	visit(s.Roots, 0)
}

// IsBlocked reports whether t depends on a task that is not completed.
// A dependency on a task missing from the snapshot does not block.
func (s *Snapshot) IsBlocked(t *models.Task) bool {
	if t == nil || t.DependsOnID == nil {
		return false
	}
	dep, ok := s.byID[*t.DependsOnID]
	return ok && !dep.Completed
}
