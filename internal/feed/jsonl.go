package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mvmcode/elves-sub000/internal/game"
)

// maxLine bounds a single record. Tool outputs can be large.
const maxLine = 8 * 1024 * 1024

// ReadJSONL decodes one record per line. Blank lines are skipped and
// invalid records are dropped (and counted by the decoder); only read
// errors abort.
func ReadJSONL(r io.Reader, d *Decoder) ([]game.Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var out []game.Event
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := d.Decode(line)
		if err != nil {
			if errors.Is(err, ErrInvalidRecord) {
				continue
			}
			return out, err
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

// LoadFile reads a JSONL event file. Files ending in .zst are
// zstd-compressed.
func LoadFile(path string, d *Decoder) ([]game.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	evs, err := ReadJSONL(r, d)
	if err != nil {
		return evs, fmt.Errorf("%s: %w", path, err)
	}
	return evs, nil
}

// WriteJSONL encodes events one per line, compressing with zstd when
// path ends in .zst.
func WriteJSONL(path string, evs []game.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return err
		}
		w = zw
	}
	bw := bufio.NewWriter(w)
	for _, ev := range evs {
		raw, err := json.Marshal(ev)
		if err != nil {
			_ = f.Close()
			return err
		}
		_, _ = bw.Write(raw)
		_ = bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}
