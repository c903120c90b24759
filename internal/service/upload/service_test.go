package upload

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/blob"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/hash"

	"go.uber.org/zap"
)

// fakeBlobStore хранилище в памяти без собственной дедупликации
type fakeBlobStore struct {
	objects map[string]blob.Object
	data    map[string][]byte
	seq     int
	now     time.Time
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string]blob.Object),
		data:    make(map[string][]byte),
		now:     time.Now(),
	}
}

func (f *fakeBlobStore) Put(ctx context.Context, req blob.PutRequest) (blob.Object, error) {
	f.seq++
	f.now = f.now.Add(time.Second)
	obj := blob.Object{
		Ref:         fmt.Sprintf("blob-%03d", f.seq),
		ContentHash: req.ContentHash,
		Size:        int64(len(req.Data)),
		ContentType: req.ContentType,
		UploadedAt:  f.now,
		Tags:        req.Tags,
	}
	f.objects[obj.Ref] = obj
	f.data[obj.Ref] = bytes.Clone(req.Data)
	return obj, nil
}

func (f *fakeBlobStore) FindByHash(ctx context.Context, contentHash string) (*blob.Object, error) {
	var found *blob.Object
	for ref := range f.objects {
		obj := f.objects[ref]
		if obj.ContentHash != contentHash {
			continue
		}
		if found == nil || obj.UploadedAt.Before(found.UploadedAt) {
			found = &obj
		}
	}
	return found, nil
}

func (f *fakeBlobStore) List(ctx context.Context) ([]blob.Object, error) {
	out := make([]blob.Object, 0, len(f.objects))
	for _, obj := range f.objects {
		out = append(out, obj)
	}
	return out, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, ref string) error {
	delete(f.objects, ref)
	delete(f.data, ref)
	return nil
}

func (f *fakeBlobStore) Ping(ctx context.Context) error { return nil }

var _ blob.Store = (*fakeBlobStore)(nil)

// putRaw кладёт объект в обход оркестратора — так появляются
// физические дубликаты
func (f *fakeBlobStore) putRaw(data []byte) blob.Object {
	obj, _ := f.Put(context.Background(), blob.PutRequest{
		Data:        data,
		ContentHash: hash.Sum(data),
	})
	return obj
}

func newTestService(store blob.Store) *Service {
	return NewService(store, zap.NewNop())
}

func TestSecondUploadOfSameContentReusesRef(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	data := []byte("same payload")

	first, err := svc.Upload(ctx, UploadRequest{Data: data, ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if first.IsDuplicate {
		t.Error("first upload flagged as duplicate")
	}

	second, err := svc.Upload(ctx, UploadRequest{Data: data, ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if !second.IsDuplicate {
		t.Error("second upload of identical bytes not flagged as duplicate")
	}
	if second.Ref != first.Ref {
		t.Errorf("second upload ref = %s, want %s", second.Ref, first.Ref)
	}
	if second.BytesSaved != int64(len(data)) {
		t.Errorf("bytes_saved = %d, want %d", second.BytesSaved, len(data))
	}

	// Физически объект один
	objects, _ := store.List(ctx)
	if len(objects) != 1 {
		t.Errorf("store holds %d objects, want 1", len(objects))
	}
}

func TestDifferentContentGetsDistinctRefs(t *testing.T) {
	svc := newTestService(newFakeBlobStore())
	ctx := context.Background()

	a, err := svc.Upload(ctx, UploadRequest{Data: []byte("payload a"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	b, err := svc.Upload(ctx, UploadRequest{Data: []byte("payload b"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if a.Ref == b.Ref {
		t.Error("different content mapped to the same ref")
	}
	if a.ContentHash == b.ContentHash {
		t.Error("different content produced the same fingerprint")
	}
}

func TestUploadStoresFilenameAndCallerTags(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	decision, err := svc.Upload(ctx, UploadRequest{
		Data:        []byte("tagged payload"),
		ContentType: "application/pdf",
		Filename:    "report.pdf",
		Tags:        map[string]string{"origin": "api"},
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	stored := store.objects[decision.Ref]
	if stored.Tags[TagFilename] != "report.pdf" {
		t.Errorf("filename tag = %q, want %q", stored.Tags[TagFilename], "report.pdf")
	}
	if stored.Tags["origin"] != "api" {
		t.Errorf("caller tag origin = %q, want %q", stored.Tags["origin"], "api")
	}
	if stored.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want %q", stored.ContentType, "application/pdf")
	}

	// Метаданные не участвуют в идентичности: те же байты под другим
	// именем — дубликат
	second, err := svc.Upload(ctx, UploadRequest{
		Data:        []byte("tagged payload"),
		ContentType: "application/pdf",
		Filename:    "renamed.pdf",
	})
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if !second.IsDuplicate || second.Ref != decision.Ref {
		t.Errorf("renamed duplicate = %+v, want reuse of %s", second, decision.Ref)
	}
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService(newFakeBlobStore())
	ctx := context.Background()

	if _, err := svc.Upload(ctx, UploadRequest{ContentType: "text/plain"}); err != ErrEmptyData {
		t.Errorf("empty upload returned %v, want ErrEmptyData", err)
	}
}

func TestCheckDuplicate(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	data := []byte("known content")
	decision, err := svc.Upload(ctx, UploadRequest{Data: data, ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	found, err := svc.CheckDuplicate(ctx, decision.ContentHash)
	if err != nil {
		t.Fatalf("checkDuplicate failed: %v", err)
	}
	if found == nil || found.Ref != decision.Ref {
		t.Errorf("checkDuplicate = %+v, want ref %s", found, decision.Ref)
	}

	missing, err := svc.CheckDuplicate(ctx, hash.Sum([]byte("never uploaded")))
	if err != nil {
		t.Fatalf("checkDuplicate failed: %v", err)
	}
	if missing != nil {
		t.Errorf("checkDuplicate found an object for unknown content: %+v", missing)
	}

	if _, err := svc.CheckDuplicate(ctx, "not-a-fingerprint"); err != ErrInvalidFingerprint {
		t.Errorf("malformed fingerprint returned %v, want ErrInvalidFingerprint", err)
	}
}

func TestCompactRemovesDuplicatesKeepsEarliest(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	// Три физические копии одного содержимого и один уникальный объект
	data := []byte("duplicated bytes")
	keeper := store.putRaw(data)
	store.putRaw(data)
	store.putRaw(data)
	unique := store.putRaw([]byte("unique bytes"))

	report, err := svc.Compact(ctx, false)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	if report.DuplicateGroups != 1 {
		t.Errorf("duplicate_groups = %d, want 1", report.DuplicateGroups)
	}
	if report.ObjectsRemoved != 2 {
		t.Errorf("objects_removed = %d, want 2", report.ObjectsRemoved)
	}
	if report.BytesReclaimed != int64(2*len(data)) {
		t.Errorf("bytes_reclaimed = %d, want %d", report.BytesReclaimed, 2*len(data))
	}

	objects, _ := store.List(ctx)
	if len(objects) != 2 {
		t.Fatalf("store holds %d objects after compact, want 2", len(objects))
	}

	refs := map[string]bool{}
	for _, obj := range objects {
		refs[obj.Ref] = true
	}
	// Выживает самый ранний из группы — живые ссылки продолжают резолвиться
	if !refs[keeper.Ref] {
		t.Errorf("earliest object %s was removed", keeper.Ref)
	}
	if !refs[unique.Ref] {
		t.Errorf("unique object %s was removed", unique.Ref)
	}

	found, _ := svc.CheckDuplicate(ctx, keeper.ContentHash)
	if found == nil || found.Ref != keeper.Ref {
		t.Errorf("fingerprint lookup after compact = %+v, want %s", found, keeper.Ref)
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	data := []byte("duplicated bytes")
	store.putRaw(data)
	store.putRaw(data)

	first, err := svc.Compact(ctx, false)
	if err != nil {
		t.Fatalf("first compact failed: %v", err)
	}
	if first.ObjectsRemoved != 1 {
		t.Fatalf("first compact removed %d objects, want 1", first.ObjectsRemoved)
	}

	// Повторный проход на уплотнённом хранилище — no-op
	second, err := svc.Compact(ctx, false)
	if err != nil {
		t.Fatalf("second compact failed: %v", err)
	}
	if second.ObjectsRemoved != 0 || second.DuplicateGroups != 0 || second.BytesReclaimed != 0 {
		t.Errorf("second compact not a no-op: %+v", second)
	}
}

func TestCompactDryRunDeletesNothing(t *testing.T) {
	store := newFakeBlobStore()
	svc := newTestService(store)
	ctx := context.Background()

	data := []byte("duplicated bytes")
	store.putRaw(data)
	store.putRaw(data)

	report, err := svc.Compact(ctx, true)
	if err != nil {
		t.Fatalf("dry-run compact failed: %v", err)
	}
	if report.ObjectsRemoved != 1 {
		t.Errorf("dry-run reported %d removals, want 1", report.ObjectsRemoved)
	}
	if !report.DryRun {
		t.Error("report does not carry the dry_run flag")
	}

	objects, _ := store.List(ctx)
	if len(objects) != 2 {
		t.Errorf("dry-run deleted objects: %d left, want 2", len(objects))
	}
}
