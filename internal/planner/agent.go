package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/task"
)

// AgentPlanner drives a ProductOwner agent that reads the repository and
// breaks the request into independent, dependency-annotated tasks.
type AgentPlanner struct {
	executor agent.Executor
	baseRepo string
	maxTurns int
	model    string
	logger   *logging.Logger
}

// NewAgentPlanner creates a planner over the given executor. The ProductOwner
// works read-only from the base repository root.
func NewAgentPlanner(executor agent.Executor, baseRepo string, maxTurns int, model string, logger *logging.Logger) *AgentPlanner {
	if logger == nil {
		logger = logging.New(nil, "ProductOwner", "")
	}
	return &AgentPlanner{
		executor: executor,
		baseRepo: baseRepo,
		maxTurns: maxTurns,
		model:    model,
		logger:   logger,
	}
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// plannedTask is the JSON shape the ProductOwner is instructed to emit.
type plannedTask struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	Dependencies []string `json:"dependencies"`
}

// Decompose runs the ProductOwner once and parses the fenced JSON task list
// from its final output.
func (p *AgentPlanner) Decompose(ctx context.Context, request string) ([]*task.Task, error) {
	p.logger.Info("planning", "request", request)

	res, err := p.executor.Execute(ctx, buildPlanPrompt(request), agent.ExecuteOptions{
		WorkingDirectory: p.baseRepo,
		MaxTurns:         p.maxTurns,
		AllowedTools:     agent.RoleProductOwner.AllowedTools(),
		Model:            p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("planner execution: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("planner did not finish: %s", res.ErrorMessage)
	}

	tasks, err := parseTaskList(res.AssistantText())
	if err != nil {
		return nil, err
	}
	p.logger.Info("plan ready", "tasks", len(tasks))
	return tasks, nil
}

// parseTaskList extracts the last fenced JSON array from the agent output.
// Agents often restate the plan while working; the final fence is the
// authoritative one.
func parseTaskList(text string) ([]*task.Task, error) {
	matches := fencedJSON.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("planner output contains no JSON task list")
	}
	raw := matches[len(matches)-1][1]

	var planned []plannedTask
	if err := json.Unmarshal([]byte(raw), &planned); err != nil {
		return nil, fmt.Errorf("parse planner output: %w", err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("planner produced an empty task list")
	}

	tasks := make([]*task.Task, 0, len(planned))
	for i, pt := range planned {
		if pt.ID == "" {
			pt.ID = fmt.Sprintf("task-%d", i+1)
		}
		tasks = append(tasks, &task.Task{
			ID:           pt.ID,
			Type:         parseType(pt.Type),
			Title:        pt.Title,
			Description:  pt.Description,
			Priority:     task.ParsePriority(pt.Priority),
			Dependencies: pt.Dependencies,
		})
	}
	return finalize(tasks)
}

func buildPlanPrompt(request string) string {
	var b strings.Builder
	b.WriteString("あなたはプロダクトオーナーです。以下の開発依頼をリポジトリの現状を踏まえて、")
	b.WriteString("並列に実装できる独立したタスクに分解してください。\n\n")
	b.WriteString("## 開発依頼\n\n")
	b.WriteString(request)
	b.WriteString("\n\n## 出力形式\n\n")
	b.WriteString("最後に、タスク一覧を次の形式の JSON コードブロックで出力してください:\n\n")
	b.WriteString("```json\n")
	b.WriteString(`[
  {
    "id": "task-1",
    "type": "feature",
    "title": "短いタイトル",
    "description": "エンジニアが単独で実装できる具体的な指示",
    "priority": "high",
    "dependencies": []
  }
]
`)
	b.WriteString("```\n\n")
	b.WriteString("制約:\n")
	b.WriteString("- type は feature / bugfix / refactor / test / docs のいずれか\n")
	b.WriteString("- priority は high / medium / low のいずれか\n")
	b.WriteString("- dependencies には先にマージされるべきタスクの id のみを列挙する\n")
	b.WriteString("- 循環依存を作らない\n")
	b.WriteString("- 各タスクは他のタスクの作業ディレクトリに依存せず単独で完結させる\n")
	return b.String()
}
