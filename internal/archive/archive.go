// Package archive сохраняет последние реплики гильдии на диск.
//
// Файл — последовательность записей, каждая с префиксом длины (varint);
// сама запись закодирована в wire-формате protobuf:
//
//	1 id          string
//	2 guild_id    string
//	3 user_id     string
//	4 started_at  int64 (unix ms)
//	5 ended_at    int64 (unix ms)
//	6 sample_rate uint32
//	7 channels    uint32
//	8 pcm         bytes (s16le)
//	9 reply       string
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const Ext = ".vbrec"

var ErrCorrupt = errors.New("archive: corrupt record")

type Record struct {
	ID         string
	GuildID    string
	UserID     string
	StartedAt  time.Time
	EndedAt    time.Time
	SampleRate int
	Channels   int
	PCM        []byte
	Reply      string
}

func (r Record) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	return time.Duration(len(r.PCM)/(2*r.Channels)) * time.Second / time.Duration(r.SampleRate)
}

const (
	fieldID protowire.Number = iota + 1
	fieldGuildID
	fieldUserID
	fieldStartedAt
	fieldEndedAt
	fieldSampleRate
	fieldChannels
	fieldPCM
	fieldReply
)

func appendRecord(b []byte, r Record) []byte {
	b = appendString(b, fieldID, r.ID)
	b = appendString(b, fieldGuildID, r.GuildID)
	b = appendString(b, fieldUserID, r.UserID)
	b = appendTime(b, fieldStartedAt, r.StartedAt)
	b = appendTime(b, fieldEndedAt, r.EndedAt)
	b = protowire.AppendTag(b, fieldSampleRate, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SampleRate))
	b = protowire.AppendTag(b, fieldChannels, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Channels))
	if len(r.PCM) > 0 {
		b = protowire.AppendTag(b, fieldPCM, protowire.BytesType)
		b = protowire.AppendBytes(b, r.PCM)
	}
	b = appendString(b, fieldReply, r.Reply)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixMilli()))
}

func parseRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldID || num == fieldGuildID || num == fieldUserID || num == fieldPCM || num == fieldReply):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			switch num {
			case fieldID:
				r.ID = string(v)
			case fieldGuildID:
				r.GuildID = string(v)
			case fieldUserID:
				r.UserID = string(v)
			case fieldPCM:
				r.PCM = append([]byte(nil), v...)
			case fieldReply:
				r.Reply = string(v)
			}
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldStartedAt && num <= fieldChannels:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			switch num {
			case fieldStartedAt:
				r.StartedAt = time.UnixMilli(protowire.DecodeZigZag(v))
			case fieldEndedAt:
				r.EndedAt = time.UnixMilli(protowire.DecodeZigZag(v))
			case fieldSampleRate:
				r.SampleRate = int(v)
			case fieldChannels:
				r.Channels = int(v)
			}
			b = b[n:]
		default:
			// неизвестное поле — пропускаем
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// Encode — все записи одним буфером.
func Encode(records []Record) []byte {
	var out []byte
	for _, r := range records {
		out = protowire.AppendBytes(out, appendRecord(nil, r))
	}
	return out
}

func Decode(b []byte) ([]Record, error) {
	var out []Record
	for len(b) > 0 {
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return out, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		r, err := parseRecord(raw)
		if err != nil {
			return out, err
		}
		out = append(out, r)
		b = b[n:]
	}
	return out, nil
}

// Save пишет записи в новый файл каталога dir и возвращает путь к нему.
func Save(dir, guildID string, records []Record) (string, error) {
	if len(records) == 0 {
		return "", errors.New("archive: nothing to save")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%s%s",
		guildID, time.Now().Format("20060102-150405"), uuid.NewString()[:8], Ext)
	path := filepath.Join(dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Encode(records), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func Read(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	recs, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// List — файлы архива в dir, от новых к старым.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(dir, e.Name()), info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}
