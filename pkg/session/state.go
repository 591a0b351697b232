package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
)

// MaxContentBytes is the largest accepted code or file payload.
const MaxContentBytes = 1_000_000

// MaxPathLength is the largest accepted file path.
const MaxPathLength = 500

// ValidatePath enforces the file-path rules: non-empty, at most 500
// characters, and no ".." segment regardless of where it would resolve.
func ValidatePath(path string) error {
	if path == "" {
		return errors.NewInvalidPayloadError("path must not be empty")
	}
	if len(path) > MaxPathLength {
		return errors.NewInvalidPayloadError(fmt.Sprintf("path exceeds %d characters", MaxPathLength))
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return errors.NewInvalidPayloadError("path must not contain .. segments")
		}
	}
	return nil
}

func validateContent(content string) error {
	if len(content) > MaxContentBytes {
		return errors.NewInvalidPayloadError(fmt.Sprintf("content exceeds %d bytes", MaxContentBytes))
	}
	return nil
}

// Code returns the session-scoped shared code buffer.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeBuffer
}

// SetCode overwrites the shared code buffer (last writer wins).
func (s *Session) SetCode(content string) error {
	if err := validateContent(content); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeBuffer = content
	return nil
}

// UpsertFile writes content to files[path], creating the entry on first
// write. Used by realtime per-file edits; last writer wins.
func (s *Session) UpsertFile(path, content, byUserID string) (FileEntry, error) {
	if err := ValidatePath(path); err != nil {
		return FileEntry{}, err
	}
	if err := validateContent(content); err != nil {
		return FileEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.files[path]
	if !ok {
		entry = FileEntry{Type: EntryFile, CreatedBy: byUserID}
	}
	if entry.Type == EntryDirectory {
		return FileEntry{}, errors.NewInvalidPayloadError("cannot write content to a directory")
	}
	entry.Content = content
	entry.LastEditedBy = byUserID
	entry.LastModified = time.Now()
	s.files[path] = entry
	return entry, nil
}

// CreateFile inserts a new file under the session namespace and returns its
// full path.
func (s *Session) CreateFile(name, content, byUserID string) (string, FileEntry, error) {
	path := s.id + "/" + strings.TrimPrefix(name, "/")
	if err := ValidatePath(path); err != nil {
		return "", FileEntry{}, err
	}
	if err := validateContent(content); err != nil {
		return "", FileEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry := FileEntry{
		Type:         EntryFile,
		Content:      content,
		CreatedBy:    byUserID,
		LastEditedBy: byUserID,
		LastModified: now,
	}
	s.files[path] = entry
	return path, entry, nil
}

// CreateFolder inserts a directory entry under the session namespace.
// Directory keys end in "/".
func (s *Session) CreateFolder(name, byUserID string) (string, FileEntry, error) {
	trimmed := strings.Trim(name, "/")
	path := s.id + "/" + trimmed + "/"
	if err := ValidatePath(path); err != nil {
		return "", FileEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := FileEntry{
		Type:         EntryDirectory,
		CreatedBy:    byUserID,
		LastEditedBy: byUserID,
		LastModified: time.Now(),
	}
	s.files[path] = entry
	return path, entry, nil
}

// FileAction is a file_operation verb.
type FileAction string

// File actions.
const (
	FileActionCreate FileAction = "create"
	FileActionDelete FileAction = "delete"
	FileActionRename FileAction = "rename"
	FileActionSave   FileAction = "save"
)

// FileOperation is a parsed file_operation request.
type FileOperation struct {
	Action  FileAction
	Path    string
	NewPath string
	Content string
}

// ApplyFileOperation applies a create/delete/rename/save to the file map.
func (s *Session) ApplyFileOperation(op FileOperation, byUserID string) error {
	if err := ValidatePath(op.Path); err != nil {
		return err
	}

	switch op.Action {
	case FileActionCreate:
		if err := validateContent(op.Content); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		now := time.Now()
		s.files[op.Path] = FileEntry{
			Type:         EntryFile,
			Content:      op.Content,
			CreatedBy:    byUserID,
			LastEditedBy: byUserID,
			LastModified: now,
		}
		return nil

	case FileActionDelete:
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.files[op.Path]; !ok {
			return errors.NewInvalidPayloadError("file does not exist")
		}
		delete(s.files, op.Path)
		// Deleting a directory removes everything beneath it.
		if strings.HasSuffix(op.Path, "/") {
			for p := range s.files {
				if strings.HasPrefix(p, op.Path) {
					delete(s.files, p)
				}
			}
		}
		return nil

	case FileActionRename:
		if err := ValidatePath(op.NewPath); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, ok := s.files[op.Path]
		if !ok {
			return errors.NewInvalidPayloadError("file does not exist")
		}
		delete(s.files, op.Path)
		entry.LastEditedBy = byUserID
		entry.LastModified = time.Now()
		s.files[op.NewPath] = entry
		return nil

	case FileActionSave:
		if err := validateContent(op.Content); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, ok := s.files[op.Path]
		if !ok {
			entry = FileEntry{Type: EntryFile, CreatedBy: byUserID}
		}
		entry.Content = op.Content
		entry.LastEditedBy = byUserID
		entry.LastModified = time.Now()
		s.files[op.Path] = entry
		return nil

	default:
		return errors.NewInvalidPayloadError(fmt.Sprintf("unknown file action %q", op.Action))
	}
}

// FileState is one entry of a session_files_state snapshot.
type FileState struct {
	Path  string    `json:"path"`
	Entry FileEntry `json:"entry"`
}

// FilesSnapshot returns the full file map as a stable-order-free list.
func (s *Session) FilesSnapshot() []FileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileState, 0, len(s.files))
	for p, e := range s.files {
		out = append(out, FileState{Path: p, Entry: e})
	}
	return out
}

// File returns a single file entry.
func (s *Session) File(path string) (FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[path]
	return e, ok
}

// AppendChat appends a message to the chat log and returns it with its
// server-assigned id and timestamp.
func (s *Session) AppendChat(userID, displayName, content, msgType string) (ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return ChatMessage{}, errors.NewInvalidPayloadError("chat message must not be empty")
	}
	if err := validateContent(content); err != nil {
		return ChatMessage{}, err
	}
	if msgType == "" {
		msgType = "text"
	}

	msg := ChatMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Content:     content,
		Type:        msgType,
		Timestamp:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatLog = append(s.chatLog, msg)
	return msg, nil
}

// ChatLog returns a snapshot of the chat log.
func (s *Session) ChatLog() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.chatLog))
	copy(out, s.chatLog)
	return out
}

// SetProject attaches a project to the session. Creator capability is
// checked by the router. In create mode the template files are preloaded
// into the file map.
func (s *Session) SetProject(p Project, templateFiles map[string]string, byUserID string) error {
	for path, content := range templateFiles {
		if err := ValidatePath(path); err != nil {
			return err
		}
		if err := validateContent(content); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.project = &p
	now := time.Now()
	for path, content := range templateFiles {
		s.files[path] = FileEntry{
			Type:         EntryFile,
			Content:      content,
			CreatedBy:    byUserID,
			LastEditedBy: byUserID,
			LastModified: now,
		}
	}
	return nil
}
