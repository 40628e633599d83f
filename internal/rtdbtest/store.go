package rtdbtest

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// NullETag is the entity tag of a location holding no data.
const NullETag = "null_etag"

var (
	ErrETagMismatch = errors.New("etag mismatch")
	ErrInvalidData  = errors.New("invalid data; couldn't parse JSON object, array, or value")
	ErrNotObject    = errors.New("invalid data; couldn't parse JSON object")
)

// Event is one change delivered to a watcher. Path is relative to the
// watched location.
type Event struct {
	Type string
	Path string
	Data json.RawMessage
}

type watcher struct {
	segs []string
	ch   chan Event
}

// Store is an in-memory JSON tree. Writing null, or an empty object,
// removes a location and prunes parents left empty.
type Store struct {
	mu       sync.Mutex
	root     any
	seq      int
	nextID   int
	watchers map[int]*watcher
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{watchers: make(map[int]*watcher)}
}

// Get returns the JSON encoding of the value at path and its ETag.
func (s *Store) Get(path string) ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := encode(lookup(s.root, split(path)))
	return b, etag(b)
}

// Put replaces the value at path. A non-empty ifMatch must equal the
// current ETag.
func (s *Store) Put(path string, data []byte, ifMatch string) (string, error) {
	v, err := decode(data)
	if err != nil {
		return "", err
	}
	segs := split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.match(segs, ifMatch); err != nil {
		return "", err
	}

	s.root = setAt(s.root, segs, v)
	s.notify(segs, "put", v)

	return etag(encode(lookup(s.root, segs))), nil
}

// Patch writes each child of the object in data under path. Child keys
// may be multi-level paths.
func (s *Store) Patch(path string, data []byte) error {
	v, err := decode(data)
	if err != nil {
		return err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ErrNotObject
	}
	segs := split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, child := range obj {
		s.root = setAt(s.root, append(append([]string{}, segs...), split(key)...), child)
	}
	s.notify(segs, "patch", obj)

	return nil
}

// Push stores data under a new, chronologically ordered child of path
// and returns the child's name.
func (s *Store) Push(path string, data []byte) (string, error) {
	v, err := decode(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	name := fmt.Sprintf("-%08d%s", s.seq, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	segs := append(split(path), name)

	s.root = setAt(s.root, segs, v)
	s.notify(segs, "put", v)

	return name, nil
}

// Delete removes the value at path, subject to ifMatch as in Put.
func (s *Store) Delete(path, ifMatch string) error {
	segs := split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.match(segs, ifMatch); err != nil {
		return err
	}

	s.root = setAt(s.root, segs, nil)
	s.notify(segs, "put", nil)

	return nil
}

// Watch delivers changes at or below path until cancel is called.
// Events are dropped when the receiver falls behind by more than the
// channel buffer.
func (s *Store) Watch(path string) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	w := &watcher{segs: split(path), ch: make(chan Event, 64)}
	s.watchers[id] = w

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
	return w.ch, cancel
}

func (s *Store) match(segs []string, ifMatch string) error {
	if ifMatch == "" {
		return nil
	}
	if etag(encode(lookup(s.root, segs))) != ifMatch {
		return ErrETagMismatch
	}
	return nil
}

// notify must be called with s.mu held.
func (s *Store) notify(changed []string, typ string, v any) {
	for _, w := range s.watchers {
		var ev Event
		switch {
		case hasPrefix(changed, w.segs):
			ev = Event{Type: typ, Path: "/" + strings.Join(changed[len(w.segs):], "/"), Data: encode(v)}
		case hasPrefix(w.segs, changed):
			ev = Event{Type: "put", Path: "/", Data: encode(lookup(s.root, w.segs))}
		default:
			continue
		}

		select {
		case w.ch <- ev:
		default:
		}
	}
}

func split(path string) []string {
	path = strings.TrimSuffix(path, ".json")
	var segs []string
	for seg := range strings.SplitSeq(path, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}

func lookup(node any, segs []string) any {
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// setAt returns node with v stored at segs. Maps along the way are
// modified in place.
func setAt(node any, segs []string, v any) any {
	if len(segs) == 0 {
		if isNull(v) {
			return nil
		}
		return v
	}

	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}

	child := setAt(m[segs[0]], segs[1:], v)
	if isNull(child) {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}

	if len(m) == 0 {
		return nil
	}
	return m
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	if dec.More() {
		return nil, ErrInvalidData
	}
	return v, nil
}

func encode(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func etag(b []byte) string {
	if string(b) == "null" {
		return NullETag
	}
	sum := sha1.Sum(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}
