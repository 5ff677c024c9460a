package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/events"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory SQLite database with the full schema,
// including the partial unique index on active attempts. The pool is pinned
// to one connection so every query sees the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            ":memory:",
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	})
	require.NoError(t, err)
	return db
}

// newTestDispatcher wires a dispatcher and redis client against miniredis.
func newTestDispatcher(t *testing.T) (*events.Dispatcher, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return events.NewDispatcher(rdb, "interview:events"), rdb
}

func testInterviewConfig() *config.InterviewConfig {
	return &config.InterviewConfig{
		UploadURLTTL:        15 * time.Minute,
		ViewURLTTL:          time.Hour,
		MinVideoBytes:       1024,
		MaxVideoBytes:       2 << 30,
		AllowedContentTypes: []string{"video/webm", "video/mp4"},
		MediaRetention:      120 * time.Hour,
		AbandonAfter:        time.Hour,
		Cooldown:            168 * time.Hour,
		MaxTimeOutsideMs:    60000,
		MaxViolations:       5,
		MinUnlockReasonLen:  10,
	}
}

// seedTrack inserts a track with one active version and two prompts.
func seedTrack(t *testing.T, db *gorm.DB, slug string) *domain.TrackVersion {
	t.Helper()

	tracks := repository.NewTrackRepository(db)
	track := &domain.InterviewTrack{
		ID:     uuid.New().String(),
		Slug:   slug,
		Title:  "Backend Engineering",
		Active: true,
	}
	require.NoError(t, tracks.CreateTrack(context.Background(), track))

	version := &domain.TrackVersion{
		ID:                 uuid.New().String(),
		TrackID:            track.ID,
		PromptVersionID:    uuid.New().String(),
		EvaluatorVersionID: uuid.New().String(),
		Prompts: domain.PromptList{
			{ID: "q1", Text: "Describe a system you designed."},
			{ID: "q2", Text: "How do you approach debugging under pressure?"},
		},
		IsActive: true,
	}
	require.NoError(t, tracks.CreateVersion(context.Background(), version))
	return version
}

// fakeStorage is an in-memory ObjectStorage stub with configurable failures.
type fakeStorage struct {
	headInfo  *storage.ObjectInfo
	headErr   error
	deleteErr error
	data      []byte
	deleted   []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		headInfo: &storage.ObjectInfo{Size: 4096, ContentType: "video/webm"},
		data:     []byte("webm-bytes"),
	}
}

var _ storage.ObjectStorage = (*fakeStorage)(nil)

func (f *fakeStorage) EnsureBucket(_ context.Context) error {
	return nil
}

func (f *fakeStorage) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, time.Time, error) {
	return "https://storage.test/upload/" + key, time.Now().Add(ttl), nil
}

func (f *fakeStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/view/" + key, nil
}

func (f *fakeStorage) Head(_ context.Context, _ string) (*storage.ObjectInfo, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return f.headInfo, nil
}

func (f *fakeStorage) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

func (f *fakeStorage) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}
