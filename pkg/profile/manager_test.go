package profile

import (
	"context"
	"testing"

	"github.com/easyops/memflow-go/pkg/core/errors"
	"github.com/easyops/memflow-go/pkg/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	mgr, err := NewManager(store, WithIDGenerator(func() string { return "anon-1" }))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return mgr, store
}

func TestGetUnknownUserReturnsNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Get(context.Background(), "nobody")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateCreatesAndMerges(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Update(ctx, "alice",
		map[string]string{"language": "zh-CN"},
		map[string]string{"style": "concise"},
	)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// 第二次更新只改一个偏好键，其余保持
	p, err := mgr.Update(ctx, "alice", nil, map[string]string{"format": "markdown"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if p.CoreAttributes["language"] != "zh-CN" {
		t.Errorf("core attribute lost: %v", p.CoreAttributes)
	}
	if p.LearnedPreferences["style"] != "concise" || p.LearnedPreferences["format"] != "markdown" {
		t.Errorf("preferences not merged: %v", p.LearnedPreferences)
	}
}

func TestUpdateNeverDropsUnmentionedPreferences(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	mgr.Update(ctx, "alice", nil, map[string]string{"a": "1", "b": "2"}) //nolint:errcheck
	p, err := mgr.Update(ctx, "alice", nil, map[string]string{"a": "changed"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if p.LearnedPreferences["a"] != "changed" || p.LearnedPreferences["b"] != "2" {
		t.Errorf("preferences = %v", p.LearnedPreferences)
	}
}

func TestExportAllBundlesProfileAndRecords(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	mgr.Update(ctx, "alice", map[string]string{"language": "en"}, nil) //nolint:errcheck
	store.Put(ctx, memory.TierLongTerm, "facts", "f1", "likes jazz", "alice") //nolint:errcheck

	bundle, err := mgr.ExportAll(ctx, "alice")
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if bundle.Profile == nil || bundle.Profile.CoreAttributes["language"] != "en" {
		t.Errorf("bundle profile = %+v", bundle.Profile)
	}
	longTerm := bundle.Records[memory.TierLongTerm]
	if len(longTerm) != 2 { // 画像记录 + 事实记录
		t.Errorf("long-term records = %d, want 2", len(longTerm))
	}
}

func TestDeleteIsExhaustiveAndIdempotent(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	mgr.Update(ctx, "alice", nil, map[string]string{"style": "brief"})          //nolint:errcheck
	store.Put(ctx, memory.TierShortTerm, "scratch", "s1", "tmp", "alice")       //nolint:errcheck
	store.Put(ctx, memory.TierLongTerm, "facts", "f1", "likes jazz", "alice")   //nolint:errcheck

	if err := mgr.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := mgr.Get(ctx, "alice"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("profile survived delete: %v", err)
	}
	if _, err := store.Get(ctx, memory.TierLongTerm, "facts", "f1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("long-term record survived delete: %v", err)
	}

	// 重复删除静默成功
	if err := mgr.Delete(ctx, "alice"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestAnonymizeStripsIdentifyingFieldsAndReKeys(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	mgr.Update(ctx, "alice",
		map[string]string{"language": "en"},
		map[string]string{
			"style":      "concise",
			"email":      "alice@example.com",
			"home_address": "1 Main St",
		},
	) //nolint:errcheck

	if err := mgr.Anonymize(ctx, "alice"); err != nil {
		t.Fatalf("Anonymize() error = %v", err)
	}

	// 原画像被删除
	if _, err := mgr.Get(ctx, "alice"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("original profile survived: %v", err)
	}

	// 匿名副本只保留非标识偏好，且不带核心属性
	anon, err := mgr.Get(ctx, "anon-1")
	if err != nil {
		t.Fatalf("Get(anon) error = %v", err)
	}
	if len(anon.CoreAttributes) != 0 {
		t.Errorf("core attributes carried over: %v", anon.CoreAttributes)
	}
	if anon.LearnedPreferences["style"] != "concise" {
		t.Errorf("non-identifying preference lost: %v", anon.LearnedPreferences)
	}
	if _, ok := anon.LearnedPreferences["email"]; ok {
		t.Error("identifying key survived anonymization")
	}
	if _, ok := anon.LearnedPreferences["home_address"]; ok {
		t.Error("identifying key survived anonymization")
	}

	// 匿名记录不在原用户名下
	records, err := store.ExportOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ExportOwner() error = %v", err)
	}
	for _, recs := range records {
		if len(recs) != 0 {
			t.Errorf("records still owned by alice: %+v", recs)
		}
	}
}

func TestAnonymizeUnknownUserIsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.Anonymize(context.Background(), "nobody"); err != nil {
		t.Fatalf("Anonymize() error = %v", err)
	}
}
