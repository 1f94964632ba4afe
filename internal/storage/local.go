package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage хранит блобы в локальной файловой системе.
// Ключи транслируются в пути внутри базовой директории.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// keyPath переводит ключ хранилища в путь, не давая выйти за baseDir
func (l *LocalStorage) keyPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("key is required")
	}
	return filepath.Join(l.baseDir, clean), nil
}

func (l *LocalStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	path, err := l.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetObject(_ context.Context, key string) (Object, error) {
	path, err := l.keyPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return &object{
		ReadCloser:    f,
		contentLength: info.Size(),
		contentType:   contentType,
	}, nil
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	path, err := l.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Probe проверяет существование файла. Отказ в доступе не считается
// отсутствием - та же классификация, что и у S3-бэкенда.
func (l *LocalStorage) Probe(_ context.Context, key string) (ProbeResult, error) {
	path, err := l.keyPath(key)
	if err != nil {
		return ProbeForbidden, err
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return ProbeExists, nil
	case errors.Is(statErr, os.ErrNotExist):
		return ProbeNotFound, nil
	case errors.Is(statErr, os.ErrPermission):
		return ProbeForbidden, nil
	default:
		return ProbeForbidden, fmt.Errorf("failed to probe file %s: %w", key, statErr)
	}
}

// ReadAll - вспомогательная функция чтения объекта целиком
func ReadAll(obj Object) ([]byte, error) {
	defer obj.Close()
	return io.ReadAll(obj)
}
