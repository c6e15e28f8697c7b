package storelib

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/file_io"
)

// File is the high-level handle a test author or plugin works with. Each
// primitive operation transparently acquires a grant, performs the I/O and
// releases; inside an explicit transaction the held grant is reused so the
// whole sequence is atomic with respect to other holders of the same file.
type File struct {
	client *Client
	io     file_io.FileIO

	metadata communication.FileMetadata

	mu      sync.Mutex
	held    *Grant
	txDepth int
}

// NewFile creates a handle over the file described by metadata. No grant is
// requested until an operation runs. A handle created without a name adopts
// the identity of its first grant, so later operations keep hitting the same
// file.
func NewFile(client *Client, io file_io.FileIO, metadata communication.FileMetadata) *File {
	return &File{
		client:   client,
		io:       io,
		metadata: metadata,
	}
}

// Metadata returns the request metadata this handle resolves under.
func (f *File) Metadata() communication.FileMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata
}

func (f *File) requestMetadata() communication.FileMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata
}

// pinIdentity fixes a nameless handle to the file its first grant resolved.
// Without this every operation would mint a fresh anonymous identity and the
// handle would scatter across unrelated files.
func (f *File) pinIdentity(grant Grant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadata.Name != "" {
		return
	}

	ext := f.metadata.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f.metadata.Name = strings.TrimSuffix(filepath.Base(grant.Path), ext)
	// The generated token is already unique; global scope resolves it back
	// to the granted path without re-prefixing the owner.
	f.metadata.Scope = communication.ScopeGlobal
}

// Path returns the resolved path of the held grant, or empty when the handle
// is idle.
func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		return ""
	}
	return f.held.Path
}

func (f *File) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	err := f.withGrant(ctx, communication.ActionAccess, func(path string) error {
		var err error
		data, err = f.io.Read(path)
		return err
	})
	return data, err
}

func (f *File) ReadText(ctx context.Context) (string, error) {
	data, err := f.Read(ctx)
	return string(data), err
}

func (f *File) Write(ctx context.Context, data []byte) error {
	return f.withGrant(ctx, communication.ActionLock, func(path string) error {
		return f.io.Write(path, data)
	})
}

func (f *File) WriteText(ctx context.Context, text string) error {
	return f.Write(ctx, []byte(text))
}

func (f *File) Append(ctx context.Context, data []byte) error {
	return f.withGrant(ctx, communication.ActionLock, func(path string) error {
		return f.io.Append(path, data)
	})
}

func (f *File) AppendText(ctx context.Context, text string) error {
	return f.Append(ctx, []byte(text))
}

func (f *File) Stat(ctx context.Context) (file_io.FileInfo, error) {
	var info file_io.FileInfo
	err := f.withGrant(ctx, communication.ActionAccess, func(path string) error {
		var err error
		info, err = f.io.Stat(path)
		return err
	})
	return info, err
}

func (f *File) Unlink(ctx context.Context) error {
	return f.withGrant(ctx, communication.ActionUnlink, func(path string) error {
		return f.io.Unlink(path)
	})
}

// StartTransaction acquires a lock grant and holds it across subsequent
// operations until EndTransaction. Nested transactions are not supported.
func (f *File) StartTransaction(ctx context.Context) error {
	f.mu.Lock()
	if f.txDepth > 0 {
		f.mu.Unlock()
		return ErrTransactionActive
	}
	f.mu.Unlock()

	grant, err := f.client.AwaitGrant(ctx, communication.ActionLock, f.requestMetadata())
	if err != nil {
		return err
	}
	f.pinIdentity(grant)

	f.mu.Lock()
	f.held = &grant
	f.txDepth = 1
	f.mu.Unlock()
	return nil
}

// EndTransaction releases the held grant and returns the handle to idle.
func (f *File) EndTransaction() error {
	f.mu.Lock()
	if f.txDepth == 0 {
		f.mu.Unlock()
		return ErrNoActiveTransaction
	}
	grant := f.held
	f.held = nil
	f.txDepth = 0
	f.mu.Unlock()

	f.client.Release(grant.RequestID)
	return nil
}

// Transaction runs fn with a held lock grant, guaranteeing the release on
// every exit path including a failing fn.
func (f *File) Transaction(ctx context.Context, fn func(f *File) error) error {
	if err := f.StartTransaction(ctx); err != nil {
		return err
	}
	defer f.EndTransaction()
	return fn(f)
}

// withGrant runs op against the resolved path. Outside a transaction it
// acquires and releases a fresh grant around op, so a failed operation never
// leaves the handle holding anything.
func (f *File) withGrant(ctx context.Context, action string, op func(path string) error) error {
	f.mu.Lock()
	if f.txDepth > 0 {
		if f.held == nil {
			f.mu.Unlock()
			return ErrNotReady
		}
		path := f.held.Path
		f.mu.Unlock()
		return op(path)
	}
	f.mu.Unlock()

	grant, err := f.client.AwaitGrant(ctx, action, f.requestMetadata())
	if err != nil {
		return err
	}
	defer f.client.Release(grant.RequestID)
	f.pinIdentity(grant)

	return op(grant.Path)
}
