package logstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var emptyArray = []byte("[]")

// ErrCorrupt is returned when the log file is not a JSON array.
var ErrCorrupt = errors.New("logstore: log file is not a JSON array")

// FileStore persists records as a single JSON array, the format the uploader
// expects:
//
//	[{"Word":"yes","confidence":0.91,"timestamp":"2024-05-01T10:00:00Z"}]
//
// Every write replaces the file through a temp file and rename, so a crash
// leaves either the old or the new array on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// OpenFileStore creates the parent directory and an empty log if needed.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(emptyArray); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data, err = sjson.SetBytes(data, "-1", r)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return s.write(data)
}

func (s *FileStore) Drain() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	records := decode(data)
	if err := s.write(emptyArray); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(data, "#").Int()), nil
}

// Records returns the pending records without clearing them.
func (s *FileStore) Records() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return decode(data), nil
}

// Raw returns the file contents, the array as handed to the uploader.
func (s *FileStore) Raw() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if len(data) == 0 {
		return emptyArray, nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, s.path)
	}
	return data, nil
}

func (s *FileStore) write(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func decode(data []byte) []Record {
	var out []Record
	gjson.ParseBytes(data).ForEach(func(_, v gjson.Result) bool {
		out = append(out, Record{
			Word:       v.Get("Word").String(),
			Confidence: float32(v.Get("confidence").Float()),
			Timestamp:  v.Get("timestamp").Time(),
		})
		return true
	})
	return out
}
