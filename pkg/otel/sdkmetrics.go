package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 基于 OpenTelemetry Meter 的指标实现
//
// 惰性创建仪器并缓存，创建失败的仪器降级为空实现。
type OTelMetrics struct {
	meter      metric.Meter
	counters   map[string]Counter
	histograms map[string]Histogram
	gauges     map[string]Gauge
	mu         sync.Mutex
}

// NewOTelMetrics 创建 OpenTelemetry 指标实现
func NewOTelMetrics(meter metric.Meter) *OTelMetrics {
	return &OTelMetrics{
		meter:      meter,
		counters:   make(map[string]Counter),
		histograms: make(map[string]Histogram),
		gauges:     make(map[string]Gauge),
	}
}

// Counter 返回或创建计数器
func (m *OTelMetrics) Counter(name string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}

	counter, err := m.meter.Int64Counter(name, counterOptions(name)...)
	if err != nil {
		m.counters[name] = &NoopCounter{}
		return m.counters[name]
	}

	c := &otelCounter{counter: counter}
	m.counters[name] = c
	return c
}

// Histogram 返回或创建直方图
func (m *OTelMetrics) Histogram(name string) Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h
	}

	histogram, err := m.meter.Float64Histogram(name, histogramOptions(name)...)
	if err != nil {
		m.histograms[name] = &NoopHistogram{}
		return m.histograms[name]
	}

	h := &otelHistogram{histogram: histogram}
	m.histograms[name] = h
	return h
}

// Gauge 返回或创建仪表
func (m *OTelMetrics) Gauge(name string) Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.gauges[name]; ok {
		return g
	}

	gauge, err := m.meter.Float64Gauge(name, gaugeOptions(name)...)
	if err != nil {
		m.gauges[name] = &NoopGauge{}
		return m.gauges[name]
	}

	g := &otelGauge{gauge: gauge}
	m.gauges[name] = g
	return g
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...Attr) {
	c.counter.Add(ctx, value, metric.WithAttributes(convertAttrs(attrs)...))
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...Attr) {
	h.histogram.Record(ctx, value, metric.WithAttributes(convertAttrs(attrs)...))
}

type otelGauge struct {
	gauge metric.Float64Gauge
}

func (g *otelGauge) Set(ctx context.Context, value float64, attrs ...Attr) {
	g.gauge.Record(ctx, value, metric.WithAttributes(convertAttrs(attrs)...))
}

// counterOptions 为预定义指标补全描述和单位
func counterOptions(name string) []metric.Int64CounterOption {
	def, ok := Describe(name)
	if !ok {
		return nil
	}
	return []metric.Int64CounterOption{
		metric.WithDescription(def.Description),
		metric.WithUnit(string(def.Unit)),
	}
}

func histogramOptions(name string) []metric.Float64HistogramOption {
	def, ok := Describe(name)
	if !ok {
		return nil
	}
	return []metric.Float64HistogramOption{
		metric.WithDescription(def.Description),
		metric.WithUnit(string(def.Unit)),
	}
}

func gaugeOptions(name string) []metric.Float64GaugeOption {
	def, ok := Describe(name)
	if !ok {
		return nil
	}
	return []metric.Float64GaugeOption{
		metric.WithDescription(def.Description),
		metric.WithUnit(string(def.Unit)),
	}
}

// convertAttrs 将通用属性转换为 OTel 属性
func convertAttrs(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}

	result := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			result = append(result, attribute.String(a.Key, v))
		case int:
			result = append(result, attribute.Int(a.Key, v))
		case int64:
			result = append(result, attribute.Int64(a.Key, v))
		case float64:
			result = append(result, attribute.Float64(a.Key, v))
		case bool:
			result = append(result, attribute.Bool(a.Key, v))
		default:
			result = append(result, attribute.String(a.Key, fmt.Sprintf("%v", v)))
		}
	}
	return result
}

// compile-time interface check
var _ Metrics = (*OTelMetrics)(nil)
