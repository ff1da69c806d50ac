// Package planner turns a natural-language development request into the task
// list the pipeline executes. The decomposition itself is delegated to a
// ProductOwner agent; this package owns prompting, output parsing, and
// validation of the resulting DAG input.
package planner

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/titabash/kugutsu/internal/task"
)

// Planner produces the tasks for one run.
type Planner interface {
	Decompose(ctx context.Context, request string) ([]*task.Task, error)
}

// StaticPlanner serves a pre-built task list. Used by tests and by the
// --tasks-file flag, which bypasses the ProductOwner entirely.
type StaticPlanner struct {
	Tasks []*task.Task
}

// Decompose returns the fixed list after validating each task.
func (p *StaticPlanner) Decompose(_ context.Context, _ string) ([]*task.Task, error) {
	return finalize(p.Tasks)
}

// taskFile is the on-disk shape accepted by LoadTasksFile.
type taskFile struct {
	Tasks []taskEntry `yaml:"tasks"`
}

type taskEntry struct {
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Priority     string   `yaml:"priority"`
	Dependencies []string `yaml:"dependencies"`
}

// LoadTasksFile reads a YAML task list and returns a planner serving it.
func LoadTasksFile(path string) (*StaticPlanner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tasks file %s: %w", path, err)
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("tasks file %s defines no tasks", path)
	}

	tasks := make([]*task.Task, 0, len(file.Tasks))
	for _, e := range file.Tasks {
		tasks = append(tasks, &task.Task{
			ID:           e.ID,
			Type:         parseType(e.Type),
			Title:        e.Title,
			Description:  e.Description,
			Priority:     task.ParsePriority(e.Priority),
			Dependencies: e.Dependencies,
		})
	}
	return &StaticPlanner{Tasks: tasks}, nil
}

func parseType(s string) task.Type {
	switch task.Type(s) {
	case task.TypeFeature, task.TypeBugfix, task.TypeRefactor, task.TypeTest, task.TypeDocs:
		return task.Type(s)
	default:
		return task.TypeFeature
	}
}

// finalize validates every task and checks that dependencies point inside the
// list. Cycle detection is the scheduler's job, not the planner's.
func finalize(tasks []*task.Task) ([]*task.Task, error) {
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if ids[t.ID] {
			return nil, fmt.Errorf("duplicate task ID %s", t.ID)
		}
		ids[t.ID] = true
		if t.Status == "" {
			t.Status = task.StatusWaiting
		}
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	return tasks, nil
}
