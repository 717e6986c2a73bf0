package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/scanrouter/internal/ledger"
	"github.com/Lllllllleong/scanrouter/internal/models"
)

type fakeDownloader struct {
	body string
}

func (d fakeDownloader) Download(ctx context.Context, bucket, object, destPath string) error {
	return os.WriteFile(destPath, []byte(d.body), 0o600)
}

// fakeBucket numbers entity folders starting from taken.
type fakeBucket struct {
	mu      sync.Mutex
	taken   int
	objects []string
}

func (b *fakeBucket) Upload(ctx context.Context, localPath, object string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = append(b.objects, object)
	return nil
}

func (b *fakeBucket) UploadNumbered(ctx context.Context, localPath, prefix, name string, maxAttempts int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	object := fmt.Sprintf("%s%d/%s", prefix, b.taken, name)
	b.taken++
	b.objects = append(b.objects, object)
	return object, nil
}

type fakeTrigger struct {
	payloads []any
}

func (f *fakeTrigger) Trigger(ctx context.Context, payload any) (string, error) {
	f.payloads = append(f.payloads, payload)
	return "executions/1", nil
}

type memLedger struct {
	ledger.Nop
	known map[string]bool
}

func (m memLedger) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	if m.known[hash] {
		return "doc1", true, nil
	}
	return "", false, nil
}

func TestIntakeEntity(t *testing.T) {
	t.Parallel()

	body := strings.Join([]string{
		"\nLegal Entity Name\nGlobex Ltd\n",
		"Corporate Registration System",
		"This is to certify that,",
	}, "\f")
	bucket := &fakeBucket{taken: 2}
	trigger := &fakeTrigger{}
	r, _ := newTestRouter(models.ModeEntity, copyEngine{}, nil, nil)
	f := NewIntakeFunction(r, memLedger{}, fakeDownloader{body: body}, bucket, trigger, models.ModeEntity, quietLogger())

	if err := f.Process(context.Background(), GCSEvent{Bucket: "incoming", Name: "batch/scan.pdf"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []string{"Globex Ltd/2/Globex Ltd.pdf", "Globex Ltd/2/Cores.pdf", "Globex Ltd/2/Submission.pdf"}
	if !slices.Equal(bucket.objects, want) {
		t.Errorf("objects = %v, want %v", bucket.objects, want)
	}
	if len(trigger.payloads) != 1 {
		t.Fatalf("workflow triggered %d times, want 1", len(trigger.payloads))
	}
	payload := trigger.payloads[0].(map[string]any)
	if payload["source"] != "gs://incoming/batch/scan.pdf" {
		t.Errorf("payload source = %v", payload["source"])
	}
}

func TestIntakeAsset(t *testing.T) {
	t.Parallel()

	bucket := &fakeBucket{}
	r, _ := newTestRouter(models.ModeAsset, copyEngine{}, nil, nil)
	f := NewIntakeFunction(r, memLedger{}, fakeDownloader{body: "asset QRS42"}, bucket, nil, models.ModeAsset, quietLogger())

	if err := f.Process(context.Background(), GCSEvent{Bucket: "incoming", Name: "scan.PDF"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !slices.Equal(bucket.objects, []string{"QRS42.pdf"}) {
		t.Errorf("objects = %v", bucket.objects)
	}
}

func TestIntakeSkips(t *testing.T) {
	t.Parallel()

	body := "asset QRS42"
	hash := func() string {
		p := t.TempDir() + "/h.pdf"
		os.WriteFile(p, []byte(body), 0o600)
		h, _ := calculateFileHash(p)
		return h
	}()

	tests := []struct {
		name   string
		event  GCSEvent
		body   string
		ledger ledger.Ledger
	}{
		{"non pdf", GCSEvent{Bucket: "b", Name: "notes.txt"}, body, memLedger{}},
		{"duplicate", GCSEvent{Bucket: "b", Name: "scan.pdf"}, body, memLedger{known: map[string]bool{hash: true}}},
		{"unreadable", GCSEvent{Bucket: "b", Name: "scan.pdf"}, "", memLedger{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bucket := &fakeBucket{}
			r, _ := newTestRouter(models.ModeAsset, copyEngine{}, nil, nil)
			f := NewIntakeFunction(r, tt.ledger, fakeDownloader{body: tt.body}, bucket, nil, models.ModeAsset, quietLogger())
			if err := f.Process(context.Background(), tt.event); err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(bucket.objects) != 0 {
				t.Errorf("objects = %v, want none", bucket.objects)
			}
		})
	}
}

func TestIntakeOCRFailureIsRetried(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(models.ModeAsset, copyEngine{fail: true}, nil, nil)
	f := NewIntakeFunction(r, memLedger{}, fakeDownloader{body: "x"}, &fakeBucket{}, nil, models.ModeAsset, quietLogger())
	err := f.Process(context.Background(), GCSEvent{Bucket: "b", Name: "scan.pdf"})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want the OCR failure", err)
	}
}
