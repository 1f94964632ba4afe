package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"lmsadmin/internal/domain"
)

const (
	maxAttempts        = 5
	baseRetryDelay     = 30 * time.Second
	maxRetryDelay      = 10 * time.Minute
	defaultPollDelay   = 2 * time.Second
	workerStaleTimeout = 30 * time.Second
)

// Runner исполняет задачу одного вида. Результат - сериализованный JSON,
// который сохраняется на записи задачи.
type Runner interface {
	Run(ctx context.Context, job *domain.SyncJob) (string, error)
}

// RunnerFunc адаптирует функцию под интерфейс Runner
type RunnerFunc func(ctx context.Context, job *domain.SyncJob) (string, error)

func (f RunnerFunc) Run(ctx context.Context, job *domain.SyncJob) (string, error) {
	return f(ctx, job)
}

// JobStore - персистентная очередь задач. Реализуется repository.SyncJobRepository.
type JobStore interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	ClaimNext(ctx context.Context, now time.Time) (*domain.SyncJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, result string) error
	MarkFailed(ctx context.Context, id, errMessage string, retryAt *time.Time) error
}

// QueueWorker крутит цикл обработки очереди задач из БД с повторами
// и экспоненциальным backoff.
type QueueWorker struct {
	jobs      JobStore
	runners   map[string]Runner
	pollDelay time.Duration
	lastTick  atomic.Int64
}

func NewQueueWorker(jobs JobStore, runners map[string]Runner) *QueueWorker {
	return &QueueWorker{
		jobs:      jobs,
		runners:   runners,
		pollDelay: defaultPollDelay,
	}
}

// Start запускает цикл воркера в отдельной горутине
func (w *QueueWorker) Start(ctx context.Context) {
	go func() {
		log.Printf("[Scheduler] queue worker started")
		ticker := time.NewTicker(w.pollDelay)
		defer ticker.Stop()

		for {
			w.lastTick.Store(time.Now().Unix())
			select {
			case <-ctx.Done():
				log.Printf("[Scheduler] queue worker stopped")
				return
			case <-ticker.C:
				w.processOne(ctx)
			}
		}
	}()
}

// Alive сообщает, жив ли воркер. Используется как проба доступности
// асинхронной инфраструктуры перед постановкой в очередь.
func (w *QueueWorker) Alive() bool {
	last := w.lastTick.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(last, 0)) < workerStaleTimeout
}

func (w *QueueWorker) processOne(ctx context.Context) {
	job, err := w.jobs.ClaimNext(ctx, time.Now())
	if err != nil {
		log.Printf("[Scheduler] failed to claim job: %v", err)
		return
	}
	if job == nil {
		return
	}

	runner, ok := w.runners[job.Kind]
	if !ok {
		log.Printf("[Scheduler] no runner for job kind %q", job.Kind)
		if err := w.jobs.MarkFailed(ctx, job.ID, fmt.Sprintf("no runner for kind %q", job.Kind), nil); err != nil {
			log.Printf("[Scheduler] failed to mark job failed: %v", err)
		}
		return
	}

	result, runErr := runner.Run(ctx, job)
	if runErr == nil {
		if err := w.jobs.MarkDone(ctx, job.ID, result); err != nil {
			log.Printf("[Scheduler] failed to mark job done: %v", err)
		}
		return
	}

	log.Printf("[Scheduler] job %s failed (attempt %d/%d): %v", job.ID, job.Attempts, maxAttempts, runErr)

	var retryAt *time.Time
	if job.Attempts < maxAttempts {
		at := time.Now().Add(retryDelay(job.Attempts))
		retryAt = &at
	}
	if err := w.jobs.MarkFailed(ctx, job.ID, runErr.Error(), retryAt); err != nil {
		log.Printf("[Scheduler] failed to mark job failed: %v", err)
	}
}

// retryDelay: base * 2^(attempts-1), с потолком
func retryDelay(attempts int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// Dispatcher выбирает путь исполнения задачи: очередь с воркером либо
// inline-горутина, если воркер недоступен. Выбранный режим фиксируется
// на записи задачи - поведение различимо, результат эквивалентен.
type Dispatcher struct {
	jobs    JobStore
	runners map[string]Runner
	queue   *QueueWorker
}

func NewDispatcher(jobs JobStore, runners map[string]Runner, queue *QueueWorker) *Dispatcher {
	return &Dispatcher{
		jobs:    jobs,
		runners: runners,
		queue:   queue,
	}
}

// Submit ставит задачу на исполнение и сразу возвращает управление.
// Статус опрашивается отдельно по id задачи.
func (d *Dispatcher) Submit(ctx context.Context, job *domain.SyncJob) error {
	if _, ok := d.runners[job.Kind]; !ok {
		return fmt.Errorf("no runner for kind %q", job.Kind)
	}

	if d.queue != nil && d.queue.Alive() {
		job.Mode = domain.JobModeQueue
		return d.jobs.Create(ctx, job)
	}

	// Воркер недоступен - деградируем в fire-and-forget горутину
	job.Mode = domain.JobModeInline
	if err := d.jobs.Create(ctx, job); err != nil {
		return err
	}

	go d.runInline(job)
	return nil
}

func (d *Dispatcher) runInline(job *domain.SyncJob) {
	// Фоновая работа не привязана к контексту HTTP-запроса
	ctx := context.Background()

	if err := d.jobs.MarkRunning(ctx, job.ID); err != nil {
		log.Printf("[Scheduler] failed to mark inline job running: %v", err)
		return
	}

	runner := d.runners[job.Kind]
	result, err := runner.Run(ctx, job)
	if err != nil {
		// Синхронного вызывающего нет - ошибка персистится на записи задачи
		if markErr := d.jobs.MarkFailed(ctx, job.ID, err.Error(), nil); markErr != nil {
			log.Printf("[Scheduler] failed to mark inline job failed: %v", markErr)
		}
		return
	}

	if err := d.jobs.MarkDone(ctx, job.ID, result); err != nil {
		log.Printf("[Scheduler] failed to mark inline job done: %v", err)
	}
}
