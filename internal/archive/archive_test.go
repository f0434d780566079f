package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func sample() []Record {
	t0 := time.UnixMilli(1700000000123)
	return []Record{
		{
			ID: "a", GuildID: "g", UserID: "u1",
			StartedAt: t0, EndedAt: t0.Add(1500 * time.Millisecond),
			SampleRate: 16000, Channels: 1,
			PCM:   []byte{1, 2, 3, 4},
			Reply: "こんにちは",
		},
		{ID: "b", GuildID: "g", UserID: "u2", SampleRate: 16000, Channels: 1},
	}
}

func TestSaveAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	path, err := Save(dir, "g", sample())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(path), "g_") || filepath.Ext(path) != Ext {
		t.Fatalf("file name: %s", path)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	want := sample()
	if len(got) != len(want) {
		t.Fatalf("records: %d", len(got))
	}
	a := got[0]
	if a.ID != "a" || a.UserID != "u1" || a.Reply != "こんにちは" || !bytes.Equal(a.PCM, want[0].PCM) {
		t.Fatalf("record: %+v", a)
	}
	if !a.StartedAt.Equal(want[0].StartedAt) || !a.EndedAt.Equal(want[0].EndedAt) {
		t.Fatalf("times: %v %v", a.StartedAt, a.EndedAt)
	}
	if a.SampleRate != 16000 || a.Channels != 1 {
		t.Fatalf("format: %d/%d", a.SampleRate, a.Channels)
	}
	if !got[1].StartedAt.IsZero() || got[1].PCM != nil {
		t.Fatalf("empty fields not preserved: %+v", got[1])
	}

	files, err := List(dir)
	if err != nil || len(files) != 1 || files[0] != path {
		t.Fatalf("list: %v %v", files, err)
	}
}

func TestSaveNothing(t *testing.T) {
	if _, err := Save(t.TempDir(), "g", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	rec := appendRecord(nil, Record{ID: "x"})
	rec = protowire.AppendTag(rec, 42, protowire.VarintType)
	rec = protowire.AppendVarint(rec, 7)
	got, err := Decode(protowire.AppendBytes(nil, rec))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	b := Encode(sample())
	if _, err := Decode(b[:len(b)-3]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestListMissingDir(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || files != nil {
		t.Fatalf("got %v %v", files, err)
	}
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644)
	if files, _ := List(dir); len(files) != 0 {
		t.Fatalf("foreign files listed: %v", files)
	}
}

func TestDuration(t *testing.T) {
	r := Record{SampleRate: 16000, Channels: 1, PCM: make([]byte, 32000)}
	if r.Duration() != time.Second {
		t.Fatalf("duration %v", r.Duration())
	}
}
