package naming_service

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
)

type DefaultNamingService struct {
	baseDir string
	hook    NamingHook
	ls      log_service.LogService
}

func NewDefaultNamingService(baseDir string, ls log_service.LogService) *DefaultNamingService {
	return &DefaultNamingService{
		baseDir: baseDir,
		ls:      ls,
	}
}

// SetHook installs the naming hook. Must be called before the service starts
// resolving requests.
func (ns *DefaultNamingService) SetHook(hook NamingHook) {
	ns.hook = hook
}

// Resolve produces the path identity of the requested file.
//
// An explicit name with global scope is deterministic, so every caller
// supplying the same name coordinates over the same file. Without an explicit
// name each request gets a fresh uuid token and is never contended. Worker
// scope prefixes the owner id so two workers never collide on the same name.
func (ns *DefaultNamingService) Resolve(ownerID string, action string, metadata communication.FileMetadata) (string, error) {
	ext, err := normalizeExtension(metadata.Extension)
	if err != nil {
		return "", err
	}

	scope := metadata.Scope
	if scope == "" {
		scope = communication.ScopeGlobal
	}
	if scope != communication.ScopeGlobal && scope != communication.ScopeWorker {
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidMetadata, metadata.Scope)
	}

	var fileName string
	switch {
	case metadata.Name == "":
		fileName = uuid.New().String() + ext
	case scope == communication.ScopeWorker:
		if err := validateNamePart(metadata.Name); err != nil {
			return "", err
		}
		if err := validateNamePart(ownerID); err != nil {
			return "", err
		}
		fileName = fmt.Sprintf("%s-%s%s", ownerID, metadata.Name, ext)
	default:
		if err := validateNamePart(metadata.Name); err != nil {
			return "", err
		}
		fileName = metadata.Name + ext
	}

	candidate := filepath.Join(ns.baseDir, fileName)

	if ns.hook != nil {
		final, err := ns.hook(candidate, ResolveContext{
			OwnerID:  ownerID,
			Action:   action,
			Metadata: metadata,
		})
		if err != nil {
			ns.ls.Warn(log_service.LogEvent{
				Message:  "Naming hook rejected path",
				Metadata: map[string]any{"candidate": candidate, "owner": ownerID, "error": err.Error()},
			})
			return "", fmt.Errorf("%w: %v", ErrHookFailed, err)
		}
		candidate = final
	}

	ns.ls.Debug(log_service.LogEvent{
		Message:  "Resolved file identity",
		Metadata: map[string]any{"path": candidate, "owner": ownerID, "action": action},
	})

	return candidate, nil
}

// normalizeExtension validates the extension and guarantees a leading dot.
func normalizeExtension(ext string) (string, error) {
	if ext == "" {
		return "", fmt.Errorf("%w: extension is required", ErrInvalidMetadata)
	}
	if strings.ContainsAny(ext, "/\\") {
		return "", fmt.Errorf("%w: extension must not contain path separators", ErrInvalidMetadata)
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext, nil
}

func validateNamePart(part string) error {
	if part == "" {
		return fmt.Errorf("%w: empty name component", ErrInvalidMetadata)
	}
	if strings.ContainsAny(part, "/\\") || part == "." || part == ".." {
		return fmt.Errorf("%w: name component %q must not contain path separators", ErrInvalidMetadata, part)
	}
	return nil
}

var _ NamingService = (*DefaultNamingService)(nil)
