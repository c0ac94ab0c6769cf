package pipeline

import (
	"context"
	"fmt"
	"time"
)

// TaskFunc is the unit of work of a task.
type TaskFunc func(ctx context.Context) error

// Task is one node of a DAG.
type Task struct {
	ID         string
	Run        TaskFunc
	Retries    int
	RetryDelay time.Duration
	// AllowFailure keeps a failure of this task from failing the run.
	AllowFailure bool
}

// DAG is a fixed set of tasks connected by upstream edges.
type DAG struct {
	ID       string
	tasks    map[string]*Task
	order    []string
	upstream map[string][]string
}

func NewDAG(id string) *DAG {
	return &DAG{
		ID:       id,
		tasks:    make(map[string]*Task),
		upstream: make(map[string][]string),
	}
}

// Add registers a task. Task ids are unique within a DAG.
func (d *DAG) Add(t *Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task must have an id")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s has no function", t.ID)
	}
	if _, ok := d.tasks[t.ID]; ok {
		return fmt.Errorf("duplicate task id: %s", t.ID)
	}
	d.tasks[t.ID] = t
	d.order = append(d.order, t.ID)
	return nil
}

// SetUpstream declares that taskID runs only after every upstream task succeeded.
func (d *DAG) SetUpstream(taskID string, upstream ...string) error {
	if _, ok := d.tasks[taskID]; !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}
	for _, up := range upstream {
		if up == taskID {
			return fmt.Errorf("self-referential edge not allowed: %s -> %s", up, up)
		}
		if _, ok := d.tasks[up]; !ok {
			return fmt.Errorf("upstream task not found: %s", up)
		}
		if !contains(d.upstream[taskID], up) {
			d.upstream[taskID] = append(d.upstream[taskID], up)
		}
	}
	return nil
}

// Chain links the given tasks one after another: a >> b >> c.
func (d *DAG) Chain(ids ...string) error {
	for i := 1; i < len(ids); i++ {
		if err := d.SetUpstream(ids[i], ids[i-1]); err != nil {
			return err
		}
	}
	return nil
}

// Tasks returns task ids in insertion order.
func (d *DAG) Tasks() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *DAG) Upstream(taskID string) []string {
	out := make([]string, len(d.upstream[taskID]))
	copy(out, d.upstream[taskID])
	return out
}

// Validate returns an error when the edges contain a cycle.
func (d *DAG) Validate() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("cycle detected involving task '%s'", id)
		}

		temporary[id] = true
		for _, up := range d.upstream[id] {
			if err := visit(up); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range d.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
