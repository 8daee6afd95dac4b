package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"courtside/internal/authz"
	"courtside/internal/domain"
	"courtside/internal/objectstore"
	"courtside/internal/observability/metrics"
	"courtside/internal/store"

	"github.com/google/uuid"
)

const MaxAttachmentBytes = 10 << 20

type PostService struct {
	store  *store.Store
	bucket objectstore.Bucket
	logger *slog.Logger
	async  func(func())
}

type PostView struct {
	domain.Post
	AuthorNickname string  `json:"authorNickname"`
	AuthorPhotoURL *string `json:"authorPhotoUrl"`
}

func (s *PostService) List(ctx context.Context) ([]PostView, error) {
	posts, err := s.store.Posts().ListRecent(ctx, 0)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, posts)
}

// Today lists games scheduled on now's UTC date.
func (s *PostService) Today(ctx context.Context, now time.Time) ([]PostView, error) {
	posts, err := s.store.Posts().ListForDate(ctx, now.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, posts)
}

func (s *PostService) MapMarkers(ctx context.Context) ([]domain.Post, error) {
	return s.store.Posts().ListWithCoordinates(ctx)
}

// Get loads a post and records a view in the background. The view counter
// never delays or fails the read.
func (s *PostService) Get(ctx context.Context, id uuid.UUID) (*PostView, error) {
	post, err := s.store.Posts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate(ctx, []domain.Post{*post})
	if err != nil {
		return nil, err
	}
	s.recordView(ctx, id)
	return &views[0], nil
}

func (s *PostService) recordView(ctx context.Context, id uuid.UUID) {
	detached := context.WithoutCancel(ctx)
	s.async(func() {
		ctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := s.store.Posts().IncrementViews(ctx, id); err != nil {
			s.logger.Warn("view increment failed", "post_id", id, "error", err)
		}
	})
}

// Create persists the post, then uploads attachments. When some uploads fail
// the post stays and a *domain.PartialSuccessError describes what happened.
func (s *PostService) Create(ctx context.Context, author domain.Identity, in domain.PostInput, files []Upload) (*domain.Post, error) {
	post, err := domain.NewPost(author, in)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Size > MaxAttachmentBytes {
			return nil, domain.Invalid(fmt.Sprintf("%s is larger than 10MB", f.Filename))
		}
	}
	if err := s.store.Posts().Create(ctx, post); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return post, nil
	}

	var urls []string
	var failed []error
	for i, f := range files {
		key := fmt.Sprintf("%s/%s/%d-%s", author.ID, post.ID, i, safeName(f.Filename))
		url, err := s.bucket.Put(ctx, key, f.Body, f.ContentType)
		metrics.UploadsTotal.WithLabelValues("attachment", metrics.Result(err)).Inc()
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", f.Filename, err))
			continue
		}
		urls = append(urls, url)
	}
	if len(urls) > 0 {
		if err := s.store.Posts().SetAttachments(ctx, post.ID, author.ID, urls); err != nil {
			failed = append(failed, err)
		} else {
			post.Attachments = urls
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("post saved with failed attachments", "post_id", post.ID, "error", errors.Join(failed...))
		return post, &domain.PartialSuccessError{Record: post, Err: fmt.Errorf("%w: %w", domain.ErrUploadFailed, errors.Join(failed...))}
	}
	return post, nil
}

func (s *PostService) Update(ctx context.Context, author domain.Identity, id uuid.UUID, in domain.PostInput) (*domain.Post, error) {
	if err := requireIdentity(author); err != nil {
		return nil, err
	}
	cols, err := in.Columns()
	if err != nil {
		return nil, err
	}
	post, err := s.store.Posts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckOwner(author, post); err != nil {
		return nil, err
	}
	return s.store.Posts().Update(ctx, id, author.ID, cols)
}

// Owned loads a post for editing, failing for anyone but its author.
func (s *PostService) Owned(ctx context.Context, author domain.Identity, id uuid.UUID) (*domain.Post, error) {
	post, err := s.store.Posts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckOwner(author, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Delete(ctx context.Context, author domain.Identity, id uuid.UUID) error {
	post, err := s.Owned(ctx, author, id)
	if err != nil {
		return err
	}
	if err := s.store.Posts().Delete(ctx, post.ID, author.ID); err != nil {
		return err
	}
	if len(post.Attachments) > 0 && s.bucket != nil {
		var keys []string
		for _, u := range post.Attachments {
			if k, ok := s.bucket.KeyFromURL(u); ok {
				keys = append(keys, k)
			}
		}
		if err := s.bucket.Remove(ctx, keys...); err != nil {
			s.logger.Warn("attachment cleanup failed", "post_id", id, "error", err)
		}
	}
	return nil
}

// decorate attaches author names using one batched profile lookup.
func (s *PostService) decorate(ctx context.Context, posts []domain.Post) ([]PostView, error) {
	ids := make([]uuid.UUID, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	profiles, err := s.store.Profiles().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PostView, len(posts))
	for i, p := range posts {
		v := PostView{Post: p, AuthorNickname: p.AuthorEmail}
		if prof, ok := profiles[p.AuthorID]; ok {
			v.AuthorNickname = displayName(&prof, p.AuthorEmail)
			v.AuthorPhotoURL = prof.ProfilePhotoURL
		}
		if v.AuthorNickname == "" {
			v.AuthorNickname = "User"
		}
		out[i] = v
	}
	return out, nil
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if s := strings.Trim(b.String(), "."); s != "" {
		return s
	}
	return "file"
}
