package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/commit"
	"github.com/zombor/ledger-sense/internal/ocr"
	"github.com/zombor/ledger-sense/internal/reconcile"
	"github.com/zombor/ledger-sense/internal/upload"
)

// Committer submits validated rows to storage
type Committer interface {
	Commit(ctx context.Context, rows []reconcile.Row, mode commit.Mode, cc commit.Target, cred auth.Credential) (*commit.Result, error)
}

// UserResolver resolves the authenticated user behind a credential
type UserResolver interface {
	CurrentUser(ctx context.Context, cred auth.Credential) (*auth.User, error)
}

// Deps are the collaborators every session shares
type Deps struct {
	Policy    upload.Policy
	Uploader  upload.Uploader
	Normalize upload.NormalizeFunc
	Committer Committer
	Users     UserResolver
}

// Session is one user's upload-and-reconcile workspace. Its queue and table
// live and die with it.
type Session struct {
	ID        string
	CreatedAt time.Time

	Queue *upload.Queue
	Table *reconcile.Table

	dispatcher *upload.Dispatcher
	committer  Committer
	users      UserResolver

	commitMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(id string, now time.Time, deps Deps) *Session {
	table := reconcile.NewTable()
	queue := upload.NewQueue(deps.Policy, table.Clear)

	s := &Session{
		ID:        id,
		CreatedAt: now,
		Queue:     queue,
		Table:     table,
		committer: deps.Committer,
		users:     deps.Users,
		lastSeen:  now,
	}
	s.dispatcher = upload.NewDispatcher(queue, deps.Uploader, s.merge).WithNormalizer(deps.Normalize)
	return s
}

// merge applies the latest successful OCR response; it replaces the table
func (s *Session) merge(f *upload.File, cols *ocr.Columns) {
	slog.Info("Replacing reconciliation table", "session", s.ID, "filename", f.Name, "rows", cols.RowCount())
	s.Table.Replace(cols)
}

// Dispatch uploads every idle file and waits for all of them
func (s *Session) Dispatch(ctx context.Context) {
	s.dispatcher.DispatchAll(ctx)
}

// Commit resolves the user behind cred and submits the table. On success
// the queue and table are cleared; on any failure both are left as they
// were so the user can retry without re-uploading.
func (s *Session) Commit(ctx context.Context, mode commit.Mode, date string, cred auth.Credential) (*commit.Result, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var user *auth.User
	if cred != "" && s.users != nil {
		u, err := s.users.CurrentUser(ctx, cred)
		if err != nil {
			slog.Warn("Could not resolve user for commit", "session", s.ID, "error", err)
		} else {
			user = u
		}
	}

	rows := s.Table.Rows()
	res, err := s.committer.Commit(ctx, rows, mode, commit.Target{Date: date, User: user}, cred)
	if err != nil {
		return nil, err
	}

	s.Queue.Clear()
	return res, nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// FileView is a queue entry as rendered to clients
type FileView struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	MIMEType string        `json:"mime_type"`
	Status   upload.Status `json:"status"`
	Progress int           `json:"progress"`
	Error    string        `json:"error,omitempty"`
}

// State is a point-in-time view of a session
type State struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Files     []FileView      `json:"files"`
	IdleCount int             `json:"idle_count"`
	Columns   []string        `json:"columns"`
	Rows      []reconcile.Row `json:"rows"`
}

// State snapshots the queue and table
func (s *Session) State() State {
	entries := s.Queue.Snapshot()
	files := make([]FileView, len(entries))
	idle := 0
	for i, e := range entries {
		files[i] = FileView{
			Index:    i,
			Name:     e.File.Name,
			Size:     e.File.Size,
			MIMEType: e.File.MIMEType,
			Status:   e.Status,
			Progress: e.Progress,
			Error:    e.Error,
		}
		if e.Status == upload.StatusIdle {
			idle++
		}
	}

	columns := s.Table.Columns()
	if columns == nil {
		columns = []string{}
	}
	return State{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Files:     files,
		IdleCount: idle,
		Columns:   columns,
		Rows:      s.Table.Rows(),
	}
}
