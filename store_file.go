package identity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// fileUserRecord is the persisted shape of a user in the JSON document,
// keyed by username in the parent map.
type fileUserRecord struct {
	Password  string     `json:"password"`
	Groups    []string   `json:"groups"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type fileGroupRecord struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type fileDocument struct {
	Users  map[string]*fileUserRecord  `json:"users"`
	Groups map[string]*fileGroupRecord `json:"groups"`
}

func newFileDocument() *fileDocument {
	return &fileDocument{
		Users:  map[string]*fileUserRecord{},
		Groups: map[string]*fileGroupRecord{},
	}
}

func (d *fileDocument) clone() (*fileDocument, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	next := newFileDocument()
	if err := json.Unmarshal(raw, next); err != nil {
		return nil, err
	}
	if next.Users == nil {
		next.Users = map[string]*fileUserRecord{}
	}
	if next.Groups == nil {
		next.Groups = map[string]*fileGroupRecord{}
	}
	return next, nil
}

// FileStore keeps the whole credential state in a single JSON document and
// rewrites it wholesale on every mutation, through a temp file and rename so
// readers never observe a torn write.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	doc    *fileDocument
	hasher PasswordAuthenticator
	logger Logger
}

type FileStoreOption func(*FileStore)

func WithFileStoreLogger(l Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = l
	}
}

// WithFileStoreHasher swaps the password hasher, mostly so tests can avoid
// paying the bcrypt cost on every fixture.
func WithFileStoreHasher(h PasswordAuthenticator) FileStoreOption {
	return func(s *FileStore) {
		s.hasher = h
	}
}

// NewFileStore creates a file-backed Store rooted at path. Call Initialize
// before use.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:   path,
		hasher: DefaultPasswordAuthenticator(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Initialize loads the document, creating an empty one when the file does
// not exist yet. Safe to call multiple times.
func (s *FileStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc != nil {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		doc := newFileDocument()
		if err := s.write(doc); err != nil {
			return err
		}
		s.doc = doc
		return nil
	}
	if err != nil {
		return wrapStoreError(err, "failed to read store file")
	}

	doc := newFileDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return wrapStoreError(err, "failed to decode store file")
	}
	if doc.Users == nil {
		doc.Users = map[string]*fileUserRecord{}
	}
	if doc.Groups == nil {
		doc.Groups = map[string]*fileGroupRecord{}
	}
	s.doc = doc

	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// write persists doc atomically: marshal, write next to the target, rename.
func (s *FileStore) write(doc *fileDocument) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return wrapStoreError(err, "failed to create store directory")
		}
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return wrapStoreError(err, "failed to encode store document")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return wrapStoreError(err, "failed to write store document")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return wrapStoreError(err, "failed to replace store document")
	}

	return nil
}

// update runs fn against a working copy of the document. When fn reports a
// change the copy is persisted and then swapped in; on any failure the
// in-memory state is untouched, so a failed write has no side effects.
func (s *FileStore) update(fn func(doc *fileDocument) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return errNotInitialized()
	}

	next, err := s.doc.clone()
	if err != nil {
		return wrapStoreError(err, "failed to copy store document")
	}

	changed, err := fn(next)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.doc = next

	return nil
}

func (s *FileStore) view(fn func(doc *fileDocument) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.doc == nil {
		return errNotInitialized()
	}

	return fn(s.doc)
}

func errNotInitialized() error {
	return errors.New("store is not initialized", errors.CategoryOperation)
}

func (s *FileStore) AuthenticateUser(ctx context.Context, username, password string) (bool, error) {
	var hash string
	found := false

	err := s.view(func(doc *fileDocument) error {
		if rec, ok := doc.Users[username]; ok {
			hash = rec.Password
			found = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	// Unknown user and bad password produce the same outcome.
	if !found {
		return false, nil
	}

	if err := s.hasher.ComparePasswordAndHash(password, hash); err != nil {
		return false, nil
	}

	return true, nil
}

func (s *FileStore) GetUser(ctx context.Context, username string) (*User, error) {
	var user *User

	err := s.view(func(doc *fileDocument) error {
		rec, ok := doc.Users[username]
		if !ok {
			return ErrUserNotFound
		}
		user = userFromRecord(username, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *FileStore) GetUsers(ctx context.Context) ([]*User, error) {
	var users []*User

	err := s.view(func(doc *fileDocument) error {
		names := make([]string, 0, len(doc.Users))
		for name := range doc.Users {
			names = append(names, name)
		}
		sort.Strings(names)

		users = make([]*User, 0, len(names))
		for _, name := range names {
			users = append(users, userFromRecord(name, doc.Users[name]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (s *FileStore) AddUser(ctx context.Context, username, password string) (bool, error) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return false, err
	}

	added := false
	err = s.update(func(doc *fileDocument) (bool, error) {
		if _, exists := doc.Users[username]; exists {
			return false, nil
		}
		now := time.Now()
		doc.Users[username] = &fileUserRecord{
			Password:  hash,
			Groups:    []string{},
			CreatedAt: &now,
		}
		added = true
		return true, nil
	})

	return added, err
}

func (s *FileStore) DeleteUser(ctx context.Context, username string) (bool, error) {
	deleted := false
	err := s.update(func(doc *fileDocument) (bool, error) {
		if _, exists := doc.Users[username]; !exists {
			return false, nil
		}
		delete(doc.Users, username)
		deleted = true
		return true, nil
	})

	return deleted, err
}

func (s *FileStore) RenameUser(ctx context.Context, oldName, newName string) error {
	return s.update(func(doc *fileDocument) (bool, error) {
		rec, exists := doc.Users[oldName]
		if !exists {
			return false, ErrUserNotFound
		}
		if _, taken := doc.Users[newName]; taken {
			return false, errors.New("username already exists", errors.CategoryConflict).
				WithCode(errors.CodeConflict).
				WithMetadata(map[string]any{"username": newName})
		}
		delete(doc.Users, oldName)
		doc.Users[newName] = rec
		touch(rec)
		return true, nil
	})
}

func (s *FileStore) SetUserPassword(ctx context.Context, username, password string) error {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}

	return s.setUserField(username, func(rec *fileUserRecord) {
		rec.Password = hash
	})
}

func (s *FileStore) SetUserEmail(ctx context.Context, username, email string) error {
	return s.setUserField(username, func(rec *fileUserRecord) {
		rec.Email = email
	})
}

func (s *FileStore) SetUserFirstName(ctx context.Context, username, firstName string) error {
	return s.setUserField(username, func(rec *fileUserRecord) {
		rec.FirstName = firstName
	})
}

func (s *FileStore) SetUserLastName(ctx context.Context, username, lastName string) error {
	return s.setUserField(username, func(rec *fileUserRecord) {
		rec.LastName = lastName
	})
}

func (s *FileStore) SetUserGroups(ctx context.Context, username string, groups []string) error {
	return s.setUserField(username, func(rec *fileUserRecord) {
		rec.Groups = dedupe(groups)
	})
}

// setUserField applies a single-field mutation. A missing user is a silent
// no-op: setters only fail on storage errors.
func (s *FileStore) setUserField(username string, apply func(rec *fileUserRecord)) error {
	return s.update(func(doc *fileDocument) (bool, error) {
		rec, exists := doc.Users[username]
		if !exists {
			return false, nil
		}
		apply(rec)
		touch(rec)
		return true, nil
	})
}

func (s *FileStore) Groups(ctx context.Context) ([]*Group, error) {
	var groups []*Group

	err := s.view(func(doc *fileDocument) error {
		names := make([]string, 0, len(doc.Groups))
		for name := range doc.Groups {
			names = append(names, name)
		}
		sort.Strings(names)

		groups = make([]*Group, 0, len(names))
		for _, name := range names {
			groups = append(groups, &Group{
				Name:      name,
				CreatedAt: doc.Groups[name].CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func (s *FileStore) AddGroup(ctx context.Context, name string) (bool, error) {
	added := false
	err := s.update(func(doc *fileDocument) (bool, error) {
		if _, exists := doc.Groups[name]; exists {
			return false, nil
		}
		now := time.Now()
		doc.Groups[name] = &fileGroupRecord{CreatedAt: &now}
		added = true
		return true, nil
	})

	return added, err
}

// DeleteGroup removes the group and, in the same document rewrite, strips it
// from every member's membership set so no dangling reference survives.
func (s *FileStore) DeleteGroup(ctx context.Context, name string) (bool, error) {
	deleted := false
	err := s.update(func(doc *fileDocument) (bool, error) {
		if _, exists := doc.Groups[name]; !exists {
			return false, nil
		}
		delete(doc.Groups, name)
		for _, rec := range doc.Users {
			rec.Groups = remove(rec.Groups, name)
		}
		deleted = true
		return true, nil
	})

	return deleted, err
}

func (s *FileStore) AddUserToGroup(ctx context.Context, username, group string) (bool, error) {
	err := s.update(func(doc *fileDocument) (bool, error) {
		rec, exists := doc.Users[username]
		if !exists {
			return false, ErrUserNotFound
		}
		for _, g := range rec.Groups {
			if g == group {
				// already a member, still a success
				return false, nil
			}
		}
		rec.Groups = append(rec.Groups, group)
		touch(rec)
		return true, nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *FileStore) RemoveUserFromGroup(ctx context.Context, username, group string) (bool, error) {
	err := s.update(func(doc *fileDocument) (bool, error) {
		rec, exists := doc.Users[username]
		if !exists {
			return false, ErrUserNotFound
		}
		next := remove(rec.Groups, group)
		if len(next) == len(rec.Groups) {
			return false, nil
		}
		rec.Groups = next
		touch(rec)
		return true, nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *FileStore) UserGroups(ctx context.Context, username string) ([]string, error) {
	var groups []string

	err := s.view(func(doc *fileDocument) error {
		rec, ok := doc.Users[username]
		if !ok {
			return ErrUserNotFound
		}
		groups = append([]string{}, rec.Groups...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func userFromRecord(username string, rec *fileUserRecord) *User {
	groups := rec.Groups
	if groups == nil {
		groups = []string{}
	}
	return &User{
		Username:     username,
		PasswordHash: rec.Password,
		Email:        rec.Email,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Groups:       append([]string{}, groups...),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func touch(rec *fileUserRecord) {
	now := time.Now()
	rec.UpdatedAt = &now
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func remove(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

var _ Store = (*FileStore)(nil)
