// Package archive provides cold storage for terminal tasks and finalized
// consensus sessions, so the in-memory maps can stay bounded.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/rhombus-tech/hive/consensus"
	"github.com/rhombus-tech/hive/coordination"
)

const (
	taskPrefix    = "task/"
	sessionPrefix = "session/"
)

// Store is a LevelDB-backed archive. Records are stored as JSON under
// kind-prefixed keys.
type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open archive at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveTask implements coordination.Archiver.
func (s *Store) ArchiveTask(ctx context.Context, task *coordination.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(taskPrefix+task.ID, task)
}

// ArchiveSession implements consensus.Archiver.
func (s *Store) ArchiveSession(ctx context.Context, completed *consensus.CompletedSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(sessionPrefix+completed.Session.ID, completed)
}

func (s *Store) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Task loads an archived task by id.
func (s *Store) Task(id string) (*coordination.Task, error) {
	var task coordination.Task
	if err := s.get(taskPrefix+id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Session loads an archived completed session by id.
func (s *Store) Session(id string) (*consensus.CompletedSession, error) {
	var completed consensus.CompletedSession
	if err := s.get(sessionPrefix+id, &completed); err != nil {
		return nil, err
	}
	return &completed, nil
}

func (s *Store) get(key string, v interface{}) error {
	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

// Tasks iterates all archived tasks.
func (s *Store) Tasks() ([]*coordination.Task, error) {
	var out []*coordination.Task
	iter := s.db.NewIterator(util.BytesPrefix([]byte(taskPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var task coordination.Task
		if err := json.Unmarshal(iter.Value(), &task); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, &task)
	}
	return out, iter.Error()
}

// Sessions iterates all archived completed sessions.
func (s *Store) Sessions() ([]*consensus.CompletedSession, error) {
	var out []*consensus.CompletedSession
	iter := s.db.NewIterator(util.BytesPrefix([]byte(sessionPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var completed consensus.CompletedSession
		if err := json.Unmarshal(iter.Value(), &completed); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, &completed)
	}
	return out, iter.Error()
}
