package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easyops/memflow-go/pkg/tools"
)

// ToolClassifier 用补全能力判定适用的工具
//
// 把工具定义和查询交给模型，要求只输出一个 JSON 数组。
// 模型输出解析失败时视为没有工具适用，分类永远不阻断装配。
type ToolClassifier struct {
	completer Completer
}

var _ tools.Classifier = (*ToolClassifier)(nil)

// NewToolClassifier 创建工具分类器
func NewToolClassifier(completer Completer) *ToolClassifier {
	return &ToolClassifier{completer: completer}
}

// Classify 返回模型认为适用的工具调用
func (c *ToolClassifier) Classify(ctx context.Context, query string, defs []tools.ToolDefinition) ([]tools.ToolCall, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	catalog, err := json.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("marshal tool definitions: %w", err)
	}

	prompt := fmt.Sprintf(`Given these tools:
%s

And this user query:
%s

Reply with ONLY a JSON array of the tool calls that apply, each as {"name": "...", "args": {...}}. Reply [] if none apply.`,
		catalog, query)

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseToolCalls(reply), nil
}

// parseToolCalls 从模型回复中提取工具调用数组
//
// 容忍回复里夹带的解释文字，只取首个 JSON 数组。
func parseToolCalls(reply string) []tools.ToolCall {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil
	}

	var raw []struct {
		Name string                 `json:"name"`
		Args map[string]interface{} `json:"args"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil
	}

	calls := make([]tools.ToolCall, 0, len(raw))
	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		args := r.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		calls = append(calls, tools.ToolCall{Name: r.Name, Args: args})
	}
	return calls
}
