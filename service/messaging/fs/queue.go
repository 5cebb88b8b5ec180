package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/taskd/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	MessageStatePending    MessageState = "pending"
	MessageStateProcessing MessageState = "processing"
	MessageStateCompleted  MessageState = "completed"
	MessageStateFailed     MessageState = "failed"
)

// Message implements messaging.Message for the filesystem queue
type Message[T any] struct {
	ID        string       `json:"id"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	queue     *Queue[T]
	name      string
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack moves the message to the completed directory
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.completeMessage(context.Background(), m)
}

// Nack moves the message to the failed directory for a retry, or to the
// dead letter directory once MaxRetries is exceeded
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.failMessage(context.Background(), m)
}

// Config holds configuration for filesystem queue
type Config struct {
	BaseURL    string        `yaml:"baseURL" json:"baseURL"`
	MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay" json:"retryDelay"`
}

// Queue implements a filesystem-based messaging.Queue. Pending files are
// named after their publish time so listing order is FIFO order.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue
func NewQueue[T any](ctx context.Context, fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("queue base URL cannot be empty")
	}
	baseURL := url.Normalize(config.BaseURL, file.Scheme)
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    url.Join(baseURL, "pending"),
		processingDir: url.Join(baseURL, "processing"),
		completedDir:  url.Join(baseURL, "completed"),
		failedDir:     url.Join(baseURL, "failed"),
		dlqDir:        url.Join(baseURL, "dlq"),
	}
	for _, dir := range []string{q.pendingDir, q.processingDir, q.completedDir, q.failedDir, q.dlqDir} {
		exists, _ := fs.Exists(ctx, dir)
		if exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// Publish adds a new message to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{
		ID:        uuid.New().String(),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	name := fmt.Sprintf("%020d-%s.json", now.UnixNano(), message.ID)
	return q.uploadMessage(ctx, url.Join(q.pendingDir, name), data)
}

// Consume returns the oldest retry-eligible failed message, else the oldest
// pending one, else nil.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, err := q.claimFailed(ctx)
	if err != nil || message != nil {
		return message, err
	}
	return q.claim(ctx, q.pendingDir, q.failedDir)
}

func (q *Queue[T]) claimFailed(ctx context.Context) (messaging.Message[T], error) {
	objects, err := q.messageFiles(ctx, q.failedDir)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	if time.Since(objects[0].ModTime()) < q.config.RetryDelay {
		return nil, nil
	}
	return q.claim(ctx, q.failedDir, q.dlqDir)
}

// claim moves the oldest message of dir into processing; unreadable files
// go to invalidDir.
func (q *Queue[T]) claim(ctx context.Context, dir, invalidDir string) (messaging.Message[T], error) {
	objects, err := q.messageFiles(ctx, dir)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	obj := objects[0]
	message, err := q.readMessageFromURL(ctx, obj.URL())
	if err != nil {
		_ = q.fs.Move(ctx, obj.URL(), url.Join(invalidDir, "invalid-"+obj.Name()))
		return nil, err
	}
	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()
	message.queue = q
	message.name = obj.Name()

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.uploadMessage(ctx, url.Join(q.processingDir, obj.Name()), data); err != nil {
		return nil, fmt.Errorf("failed to move message to processing directory: %w", err)
	}
	if err := q.fs.Delete(ctx, obj.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete message %s: %w", obj.URL(), err)
	}
	return message, nil
}

func (q *Queue[T]) messageFiles(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var ret []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			ret = append(ret, obj)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

func (q *Queue[T]) completeMessage(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal completed message: %w", err)
	}
	if err := q.uploadMessage(ctx, url.Join(q.completedDir, m.name), data); err != nil {
		return fmt.Errorf("failed to write message to completed directory: %w", err)
	}
	return q.release(ctx, m)
}

func (q *Queue[T]) failMessage(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal failed message: %w", err)
	}
	target := q.failedDir
	if m.Retries > q.config.MaxRetries {
		target = q.dlqDir
	}
	if err := q.uploadMessage(ctx, url.Join(target, m.name), data); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", target, err)
	}
	return q.release(ctx, m)
}

func (q *Queue[T]) release(ctx context.Context, m *Message[T]) error {
	processing := url.Join(q.processingDir, m.name)
	if exists, _ := q.fs.Exists(ctx, processing); exists {
		if err := q.fs.Delete(ctx, processing); err != nil {
			return fmt.Errorf("failed to delete message from processing directory: %w", err)
		}
	}
	return nil
}

func (q *Queue[T]) uploadMessage(ctx context.Context, URL string, data []byte) error {
	return q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) readMessageFromURL(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return &message, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
