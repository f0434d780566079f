package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/archive"
	"github.com/EgorLis/voicebot/internal/transcode"
)

func TestArchiveLs(t *testing.T) {
	dir := t.TempDir()
	path, err := archive.Save(dir, "g", []archive.Record{{ID: "1", Reply: "hi"}, {ID: "2"}})
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"archive", "ls", "--dir", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), filepath.Base(path)) || !strings.Contains(out.String(), "2 records") {
		t.Fatalf("output: %q", out.String())
	}
}

func TestExportWritesReplies(t *testing.T) {
	dir := t.TempDir()
	path, err := archive.Save(dir, "g", []archive.Record{{
		ID: "1", UserID: "alice", Reply: "こんにちは", StartedAt: time.Now(),
	}})
	if err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	// PCM нет — ffmpeg не понадобится
	if err := exportArchive(context.Background(), path, outDir, transcode.New("ffmpeg"), zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(outDir, "*_01_alice.txt"))
	if len(matches) != 1 {
		t.Fatalf("txt files: %v", matches)
	}
	b, _ := os.ReadFile(matches[0])
	if strings.TrimSpace(string(b)) != "こんにちは" {
		t.Fatalf("reply: %q", b)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "voicebot.json")
	if err := os.WriteFile(cfg, []byte(`{"discord":{"token":""}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"DISCORD_TOKEN", "GEMINI_API_KEY", "TTS_SERVER_URL"} {
		t.Setenv(k, "")
	}
	err := runBot(context.Background(), cfg, filepath.Join(dir, "missing.env"), false)
	if err == nil {
		t.Fatal("expected validation error")
	}
}
