package storage

import (
	"context"
	"io"
)

// ProbeResult - итог проверки существования объекта в хранилище.
// Отказ в доступе намеренно отделен от отсутствия: permission-denied не
// является свидетельством удаления, иначе временные проблемы с доступом
// приводили бы к ложным пометкам "удалено".
type ProbeResult int

const (
	ProbeExists ProbeResult = iota
	ProbeNotFound
	ProbeForbidden
)

// Object - объект, прочитанный из хранилища
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 { return o.contentLength }
func (o *object) ContentType() string  { return o.contentType }

// Storage - интерфейс блобного хранилища. Реализации: S3-совместимое
// хранилище и локальная файловая система, выбор по конфигурации.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	Probe(ctx context.Context, key string) (ProbeResult, error)
}
