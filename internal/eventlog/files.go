package eventlog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const dayLayout = "20060102"

// FileName returns `<prefix>_<worker>_<YYYYMMDD>.csv`.
func FileName(stream Stream, worker string, day time.Time) string {
	return stream.Prefix() + "_" + worker + "_" + day.Format(dayLayout) + ".csv"
}

// FileInfo describes one log file found under the root.
type FileInfo struct {
	Path   string
	Stream Stream
	Worker string
	Day    time.Time
}

// ParseFileName splits a log file name into its parts. Worker names may
// themselves contain underscores.
func ParseFileName(name string) (FileInfo, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ".csv") {
		return FileInfo{}, false
	}
	stem := strings.TrimSuffix(base, ".csv")
	for _, stream := range Streams() {
		prefix := stream.Prefix() + "_"
		if !strings.HasPrefix(stem, prefix) {
			continue
		}
		rest := strings.TrimPrefix(stem, prefix)
		idx := strings.LastIndex(rest, "_")
		if idx <= 0 {
			return FileInfo{}, false
		}
		day, err := time.ParseInLocation(dayLayout, rest[idx+1:], time.Local)
		if err != nil {
			return FileInfo{}, false
		}
		return FileInfo{Path: name, Stream: stream, Worker: rest[:idx], Day: day}, true
	}
	return FileInfo{}, false
}

// Files lists log files for stream, newest day first. An empty worker matches
// every worker.
func (s *Store) Files(stream Stream, worker string) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := ParseFileName(filepath.Join(s.root, entry.Name()))
		if !ok || info.Stream != stream {
			continue
		}
		if worker != "" && info.Worker != worker {
			continue
		}
		files = append(files, info)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].Day.Equal(files[j].Day) {
			return files[i].Day.After(files[j].Day)
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Path returns the log file path for the partition.
func (s *Store) Path(stream Stream, worker string, day time.Time) string {
	return filepath.Join(s.root, FileName(stream, worker, day))
}
