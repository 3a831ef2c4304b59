// Package token 提供面向目标模型的 Token 计数能力。
//
// 计数器由模型标识参数化：同一模型标识下计数是确定性的，
// 且对追加文本单调不减。未知模型降级为保守的（宁可高估）启发式计数，
// 因为低估会带来上下文溢出的风险。
package token

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/easyops/memflow-go/pkg/core/message"
)

// Counter 定义 Token 计数接口。
type Counter interface {
	// Count 返回给定文本的 Token 数量。
	Count(text string) int

	// EstimateMessages 返回消息列表的总 Token 数量，
	// 包括角色前缀和分隔符的开销。
	EstimateMessages(messages []message.Message) int

	// Model 返回计数语义对应的模型标识。
	Model() string
}

// familyFactor 返回模型家族的修正系数。
//
// tiktoken 的 cl100k/o200k 编码是为 OpenAI 模型设计的；
// 其他家族按保守系数向上修正，未知家族修正最多。
func familyFactor(model string) float64 {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return 1.0
	case strings.HasPrefix(m, "claude"):
		return 1.1
	case strings.HasPrefix(m, "gemini"):
		return 1.15
	case strings.HasPrefix(m, "llama"), strings.HasPrefix(m, "qwen"), strings.HasPrefix(m, "deepseek"):
		return 1.2
	default:
		return 1.3
	}
}

// TiktokenCounter 使用 tiktoken 实现精确的 Token 计数。
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	factor   float64
}

// NewTiktokenCounter 创建给定模型的 TiktokenCounter。
//
// 模型无对应编码时降级到 cl100k_base 并应用家族修正系数；
// tiktoken 完全不可用时返回错误，调用方应改用 NewHeuristicCounter。
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model == "" {
		model = "gpt-4o"
	}

	c := &TiktokenCounter{
		model:  model,
		factor: 1.0,
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// 降级到 cl100k_base 编码，并按家族保守修正
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
		c.factor = familyFactor(model)
	}

	c.encoding = encoding
	return c, nil
}

// Count 返回给定文本的 Token 数量。
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(c.encoding.Encode(text, nil, nil))
	if c.factor > 1.0 {
		// 向上取整，保证不低估
		n = int(float64(n)*c.factor) + 1
	}
	return n
}

// EstimateMessages 返回消息列表的总 Token 数量。
// 这会考虑聊天补全 API 中消息格式化的开销。
func (c *TiktokenCounter) EstimateMessages(messages []message.Message) int {
	// 基于 OpenAI 的 Token 计数指南：
	// https://cookbook.openai.com/examples/how_to_count_tokens_with_tiktoken
	tokensPerMessage := 3 // <|start|>{role/name}\n{content}<|end|>\n
	tokensPerName := 1

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
		if msg.Name != "" {
			total += c.Count(msg.Name) + tokensPerName
		}
	}
	total += 3 // 每个回复都以 <|start|>assistant<|message|> 开头

	return total
}

// Model 返回模型标识。
func (c *TiktokenCounter) Model() string {
	return c.model
}

// HeuristicCounter 使用字符估算实现 Token 计数。
//
// 这是 tiktoken 不可用或模型未知时的保守降级方案，
// 系统性向上取整。
type HeuristicCounter struct {
	model string
	// CharsPerToken 每个 Token 的平均字符数。
	// 默认值为 3.5，刻意低于英文常见的 4，以便高估。
	CharsPerToken float64
}

// NewHeuristicCounter 创建保守的估算计数器。
func NewHeuristicCounter(model string) *HeuristicCounter {
	return &HeuristicCounter{
		model:         model,
		CharsPerToken: 3.5,
	}
}

// Count 返回估算的 Token 数量（向上取整）。
func (c *HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ratio := c.CharsPerToken
	if ratio <= 0 {
		ratio = 3.5
	}
	n := int(float64(len(text))/ratio) + 1
	return n
}

// EstimateMessages 返回消息列表的估算 Token 数量。
func (c *HeuristicCounter) EstimateMessages(messages []message.Message) int {
	tokensPerMessage := 4 // 每条消息的格式开销

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
		if msg.Name != "" {
			total += c.Count(msg.Name) + 1
		}
	}
	total += 3 // 回复引导

	return total
}

// Model 返回模型标识。
func (c *HeuristicCounter) Model() string {
	return c.model
}

// NewCounter 返回给定模型的计数器，
// 优先使用 TiktokenCounter，不可用时降级到 HeuristicCounter。
func NewCounter(model string) Counter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		return NewHeuristicCounter(model)
	}
	return counter
}

// 编译时接口检查
var _ Counter = (*TiktokenCounter)(nil)
var _ Counter = (*HeuristicCounter)(nil)
