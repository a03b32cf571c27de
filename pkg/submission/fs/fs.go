package fs

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/CrumpLab/vertical/pkg/submission"
	"github.com/CrumpLab/vertical/pkg/submit/payload"
)

const extension = ".csv"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

type store struct {
	log *logrus.Entry
	dir string

	// serializes the existence check and the rename in Put
	sync.Mutex
}

// New returns a submission.Store that writes each submission's export to
// its own <filename>.<id>.csv file in dir. The receipt time is kept as
// the file's modification time.
func New(dir string) (submission.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %s", dir)
	}

	return &store{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "submission/fs",
			"dir":  dir,
		}),
		dir: dir,
	}, nil
}

// Put implements submission.Store.Put.
func (s *store) Put(_ context.Context, r *submission.Record) error {
	if err := payload.ValidateFilename(r.Filename); err != nil {
		return err
	}
	if !idPattern.MatchString(r.ID) {
		return errors.Errorf("invalid submission id: %q", r.ID)
	}

	s.Lock()
	defer s.Unlock()

	existing, err := s.find(r.ID)
	if err != nil {
		return err
	}
	if existing != "" {
		return submission.ErrExists
	}

	tmp, err := ioutil.TempFile(s.dir, ".submission-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(r.Data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write submission")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close submission file")
	}
	if err := os.Chtimes(tmp.Name(), r.ReceivedAt, r.ReceivedAt); err != nil {
		return errors.Wrap(err, "failed to set submission time")
	}

	path := filepath.Join(s.dir, r.Filename+"."+r.ID+extension)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to move submission into place")
	}

	s.log.WithFields(logrus.Fields{
		"id":   r.ID,
		"path": path,
	}).Debug("stored submission")

	return nil
}

// Get implements submission.Store.Get.
func (s *store) Get(_ context.Context, id string) (*submission.Record, error) {
	if !idPattern.MatchString(id) {
		return nil, submission.ErrNotFound
	}

	path, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, submission.ErrNotFound
	}

	filename := strings.TrimSuffix(filepath.Base(path), "."+id+extension)
	return s.load(path, filename, id)
}

// List implements submission.Store.List.
func (s *store) List(_ context.Context, filename string) ([]*submission.Record, error) {
	records := make([]*submission.Record, 0)
	if err := payload.ValidateFilename(filename); err != nil {
		return records, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, filename+".*"+extension))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list submissions")
	}

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), extension)
		idx := strings.LastIndexByte(name, '.')
		// filenames may contain dots, so the glob can also match longer
		// filenames sharing this prefix.
		if idx < 0 || name[:idx] != filename {
			continue
		}

		r, err := s.load(path, filename, name[idx+1:])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ReceivedAt.Before(records[j].ReceivedAt)
	})

	return records, nil
}

func (s *store) find(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*."+id+extension))
	if err != nil {
		return "", errors.Wrap(err, "failed to search for submission")
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		return "", errors.Errorf("multiple submissions found for id %s", id)
	}
}

func (s *store) load(path, filename, id string) (*submission.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, submission.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to stat submission")
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read submission")
	}

	return &submission.Record{
		ID:         id,
		Filename:   filename,
		Data:       string(data),
		ReceivedAt: info.ModTime(),
	}, nil
}
