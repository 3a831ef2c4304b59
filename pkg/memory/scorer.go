package memory

import (
	"context"
	"math"
	"strings"
	"sync"
	"unicode"
)

// RelevanceScorer 相关性评分器
//
// 计算查询与候选文本的相关性，返回 [0, 1] 区间的分数。
// 分数越高表示与查询越相关。
type RelevanceScorer interface {
	// Score 计算相关性分数
	Score(ctx context.Context, query, candidate string) (float64, error)
}

// Embedder 嵌入能力接口
//
// 将文本批量转换为稠密向量。
type Embedder interface {
	// Embed 批量生成嵌入向量
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TFIDFScorer 基于词频的本地评分器
//
// 无需外部 API，按查询与候选的词项余弦相似度评分。
// 支持英文空格分词和中文字符分词。
type TFIDFScorer struct{}

// NewTFIDFScorer 创建本地评分器
func NewTFIDFScorer() *TFIDFScorer {
	return &TFIDFScorer{}
}

// Score 计算相关性分数
func (s *TFIDFScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	queryTokens := tokenize(query)
	candTokens := tokenize(candidate)
	if len(queryTokens) == 0 || len(candTokens) == 0 {
		return 0, nil
	}

	queryTF := termFrequency(queryTokens)
	candTF := termFrequency(candTokens)

	// 余弦相似度
	var dot, queryNorm, candNorm float64
	for term, qv := range queryTF {
		queryNorm += qv * qv
		if cv, ok := candTF[term]; ok {
			dot += qv * cv
		}
	}
	for _, cv := range candTF {
		candNorm += cv * cv
	}

	if queryNorm == 0 || candNorm == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(queryNorm) * math.Sqrt(candNorm))
	return clampScore(score), nil
}

// tokenize 分词
//
// 中文字符单独成词，其余按字母数字连续段切分。
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var currentWord strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if unicode.Is(unicode.Han, r) {
				if currentWord.Len() > 0 {
					tokens = append(tokens, currentWord.String())
					currentWord.Reset()
				}
				tokens = append(tokens, string(r))
			} else {
				currentWord.WriteRune(r)
			}
		} else {
			if currentWord.Len() > 0 {
				tokens = append(tokens, currentWord.String())
				currentWord.Reset()
			}
		}
	}

	if currentWord.Len() > 0 {
		tokens = append(tokens, currentWord.String())
	}

	return tokens
}

// termFrequency 计算对数词频
func termFrequency(tokens []string) map[string]float64 {
	counts := make(map[string]int)
	for _, token := range tokens {
		counts[token]++
	}

	tf := make(map[string]float64, len(counts))
	for term, count := range counts {
		tf[term] = math.Log(1 + float64(count))
	}
	return tf
}

// EmbeddingScorer 基于嵌入向量的评分器
//
// 通过 Embedder 生成查询和候选的向量，按余弦相似度评分。
// 余弦值从 [-1, 1] 线性映射到 [0, 1]。
type EmbeddingScorer struct {
	embedder Embedder
}

// NewEmbeddingScorer 创建嵌入评分器
func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score 计算相关性分数
func (s *EmbeddingScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query, candidate})
	if err != nil {
		return 0, err
	}
	if len(vectors) < 2 {
		return 0, nil
	}

	sim := CosineSimilarity(vectors[0], vectors[1])
	return clampScore((sim + 1) / 2), nil
}

// CosineSimilarity 计算两个向量的余弦相似度
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CachedScorer 带缓存的评分器装饰器
//
// 在单次装配内对相同的 (query, candidate) 对只计算一次分数。
// 每次装配应使用新实例，避免跨装配的陈旧缓存。
type CachedScorer struct {
	inner RelevanceScorer
	mu    sync.Mutex
	cache map[string]float64
}

// NewCachedScorer 创建缓存评分器
func NewCachedScorer(inner RelevanceScorer) *CachedScorer {
	return &CachedScorer{
		inner: inner,
		cache: make(map[string]float64),
	}
}

// Score 计算相关性分数（带缓存）
func (s *CachedScorer) Score(ctx context.Context, query, candidate string) (float64, error) {
	key := query + "\x00" + candidate

	s.mu.Lock()
	if score, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return score, nil
	}
	s.mu.Unlock()

	score, err := s.inner.Score(ctx, query, candidate)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.cache[key] = score
	s.mu.Unlock()

	return score, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Compile-time interface checks
var (
	_ RelevanceScorer = (*TFIDFScorer)(nil)
	_ RelevanceScorer = (*EmbeddingScorer)(nil)
	_ RelevanceScorer = (*CachedScorer)(nil)
)
