package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

const (
	DefaultBatchSize      = 10
	DefaultBatchDelay     = 100 * time.Millisecond
	DefaultCommitsPerRepo = 30
	DefaultPRsPerRepo     = 30
	DefaultRESTPageSize   = 100
	DefaultRefreshTimeout = 2 * time.Minute
)

type dashboardUseCase struct {
	client  interfaces.GitHubClient
	cache   interfaces.ResultCache
	usage   interfaces.UsageReporter
	release *ReleaseResolver
	delta   *DeltaFetcher

	batchSize      int
	batchDelay     time.Duration
	commitsPerRepo int
	prsPerRepo     int
	restPageSize   int
	limiter        *rate.Limiter
	refreshTimeout time.Duration
	now            func() time.Time

	group singleflight.Group
}

var _ interfaces.DashboardUseCase = (*dashboardUseCase)(nil)

// DashboardOption is a functional option for the dashboard use case
type DashboardOption func(*dashboardUseCase)

// WithBatchSize sets how many repositories go into one combined query
func WithBatchSize(n int) DashboardOption {
	return func(uc *dashboardUseCase) {
		if n > 0 {
			uc.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between successive batches
func WithBatchDelay(d time.Duration) DashboardOption {
	return func(uc *dashboardUseCase) {
		uc.batchDelay = d
	}
}

// WithPageSizes sets the history and pull request page sizes of the combined
// query and the page size of per-repository REST calls
func WithPageSizes(commits, prs, rest int) DashboardOption {
	return func(uc *dashboardUseCase) {
		if commits > 0 {
			uc.commitsPerRepo = commits
		}
		if prs > 0 {
			uc.prsPerRepo = prs
		}
		if rest > 0 {
			uc.restPageSize = rest
		}
	}
}

// WithRESTLimiter paces per-repository REST resolution
func WithRESTLimiter(l *rate.Limiter) DashboardOption {
	return func(uc *dashboardUseCase) {
		uc.limiter = l
	}
}

// WithRefreshTimeout bounds one orchestration. It runs detached from the
// caller's context so that joined callers are not affected when the first
// caller goes away.
func WithRefreshTimeout(d time.Duration) DashboardOption {
	return func(uc *dashboardUseCase) {
		if d > 0 {
			uc.refreshTimeout = d
		}
	}
}

// WithClock replaces time.Now for result timestamps
func WithClock(now func() time.Time) DashboardOption {
	return func(uc *dashboardUseCase) {
		uc.now = now
	}
}

// NewDashboard creates a new instance of DashboardUseCase
func NewDashboard(client interfaces.GitHubClient, cache interfaces.ResultCache, usage interfaces.UsageReporter, opts ...DashboardOption) *dashboardUseCase {
	uc := &dashboardUseCase{
		client:         client,
		cache:          cache,
		usage:          usage,
		batchSize:      DefaultBatchSize,
		batchDelay:     DefaultBatchDelay,
		commitsPerRepo: DefaultCommitsPerRepo,
		prsPerRepo:     DefaultPRsPerRepo,
		restPageSize:   DefaultRESTPageSize,
		limiter:        rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}

	uc.release = NewReleaseResolver(client)
	uc.delta = NewDeltaFetcher(client, uc.restPageSize)
	return uc
}

// Usage returns the outbound call budget of the current window
func (uc *dashboardUseCase) Usage() model.RateUsage {
	if uc.usage == nil {
		return model.RateUsage{Limit: model.RateLimitPerHour, Remaining: model.RateLimitPerHour}
	}
	return uc.usage.Usage()
}

// FetchAll returns one result per repository in input order. Concurrent
// identical calls share one orchestration. The only error returned is an
// auth error, which callers must surface as a request to re-authenticate.
func (uc *dashboardUseCase) FetchAll(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, forceRefresh bool) ([]*model.RepositoryResult, error) {
	if len(repos) == 0 {
		return []*model.RepositoryResult{}, nil
	}

	ch := uc.group.DoChan(flightKey(cred, repos, forceRefresh), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(ctxlog.With(context.Background(), ctxlog.From(ctx)), uc.refreshTimeout)
		defer cancel()
		return uc.fetchAll(flightCtx, cred, repos, forceRefresh)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// the refresh keeps running for other callers and the cache
		return uc.fallbackAll(ctx, repos, goerr.Wrap(ctx.Err(), "caller stopped waiting for refresh")), nil
	}
	if res.Err != nil {
		return nil, res.Err
	}

	results := res.Val.([]*model.RepositoryResult)
	if res.Shared {
		ctxlog.From(ctx).Debug("Joined in-flight refresh", "repos", len(repos))
		copied := make([]*model.RepositoryResult, len(results))
		for i, r := range results {
			copied[i] = r.Clone()
		}
		return copied, nil
	}
	return results, nil
}

func flightKey(cred model.Credential, repos []model.RepositoryRef, force bool) string {
	h := sha256.New()
	h.Write([]byte(cred))
	h.Write([]byte{0})
	for _, r := range repos {
		h.Write([]byte(r.Key()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)) + ":" + strconv.FormatBool(force)
}

func (uc *dashboardUseCase) fetchAll(ctx context.Context, cred model.Credential, repos []model.RepositoryRef, forceRefresh bool) ([]*model.RepositoryResult, error) {
	logger := ctxlog.From(ctx).With("refresh_id", uuid.NewString())
	ctx = ctxlog.With(ctx, logger)

	if !forceRefresh {
		if cached, ok := uc.cachedAll(ctx, repos); ok {
			logger.Debug("Serving all repositories from cache", "repos", len(repos))
			return cached, nil
		}
	}

	batches := (len(repos) + uc.batchSize - 1) / uc.batchSize
	logger.Info("Fetching repositories",
		"repos", len(repos),
		"batches", batches,
		"force_refresh", forceRefresh,
	)

	results, err := uc.fetchBatches(ctx, cred, repos)
	if err != nil {
		if model.IsAuthError(err) {
			logger.Warn("Credential rejected during refresh", "error", err)
			return nil, err
		}
		logger.Error("Refresh failed, serving cached data", "error", err)
		return uc.fallbackAll(ctx, repos, err), nil
	}

	logger.Info("Fetched repositories",
		"repos", len(results),
		"usage", uc.Usage().Used,
	)
	return results, nil
}

// cachedAll returns cached results when every repository has an entry
func (uc *dashboardUseCase) cachedAll(ctx context.Context, repos []model.RepositoryRef) ([]*model.RepositoryResult, bool) {
	results := make([]*model.RepositoryResult, len(repos))
	for i, repo := range repos {
		cached, ok := uc.cache.Get(ctx, repo)
		if !ok {
			return nil, false
		}
		results[i] = cached
	}
	return results, true
}

func (uc *dashboardUseCase) fetchBatches(ctx context.Context, cred model.Credential, repos []model.RepositoryRef) ([]*model.RepositoryResult, error) {
	results := make([]*model.RepositoryResult, 0, len(repos))

	for start := 0; start < len(repos); start += uc.batchSize {
		if start > 0 && uc.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "refresh cancelled between batches")
			case <-time.After(uc.batchDelay):
			}
		}

		end := min(start+uc.batchSize, len(repos))
		batch, err := uc.fetchBatch(ctx, cred, repos[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	return results, nil
}

// fetchBatch resolves one batch with the combined query, degrading to
// per-repository calls when the query fails as a whole
func (uc *dashboardUseCase) fetchBatch(ctx context.Context, cred model.Credential, batch []model.RepositoryRef) ([]*model.RepositoryResult, error) {
	logger := ctxlog.From(ctx)

	items, err := uc.client.BatchQuery(ctx, cred, batch, uc.commitsPerRepo, uc.prsPerRepo)
	if err != nil {
		if model.IsAuthError(err) {
			return nil, err
		}
		logger.Warn("Combined query failed",
			"error", err,
			"repos", len(batch),
			"kind", model.KindOf(err),
		)
		if goerr.HasTag(err, model.ErrTagRateLimit) {
			return uc.recoverAll(ctx, batch, err), nil
		}
		return uc.fetchEach(ctx, cred, batch)
	}

	results := make([]*model.RepositoryResult, len(batch))
	for i, repo := range batch {
		var item interfaces.BatchItem
		if i < len(items) {
			item = items[i]
		}

		if item.Err != nil || item.Snapshot == nil {
			itemErr := item.Err
			if itemErr == nil {
				itemErr = goerr.Wrap(&model.StatusError{Code: http.StatusNotFound, Message: "repository missing from combined response"},
					"repository missing from combined response",
					goerr.T(model.ErrTagNotFound),
					goerr.V("repo", repo.Key()),
				)
			}
			if model.IsAuthError(itemErr) {
				return nil, itemErr
			}
			results[i] = uc.recoverResult(ctx, repo, itemErr)
			continue
		}

		result := uc.fromSnapshot(item.Snapshot)
		uc.cache.Put(ctx, result)
		results[i] = result
	}

	return results, nil
}

// fromSnapshot builds a result from already fetched data without further calls
func (uc *dashboardUseCase) fromSnapshot(snap *model.RepositorySnapshot) *model.RepositoryResult {
	marker := MarkerFromSnapshot(snap)
	if marker == nil {
		return model.NewNoReleaseResult(snap.Repo, uc.now())
	}
	return ComputeDelta(*marker, snap.Commits, snap.PullRequests).Result(snap.Repo, *marker, uc.now())
}

// fetchEach resolves every repository of batch with individual REST calls
func (uc *dashboardUseCase) fetchEach(ctx context.Context, cred model.Credential, batch []model.RepositoryRef) ([]*model.RepositoryResult, error) {
	results := make([]*model.RepositoryResult, len(batch))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, repo := range batch {
		eg.Go(func() error {
			if err := uc.limiter.Wait(egCtx); err != nil {
				results[i] = uc.recoverResult(ctx, repo, goerr.Wrap(err, "REST pacing interrupted"))
				return nil
			}

			result, err := uc.fetchOne(egCtx, cred, repo)
			if err != nil {
				if model.IsAuthError(err) {
					return err
				}
				results[i] = uc.recoverResult(ctx, repo, err)
				return nil
			}

			uc.cache.Put(ctx, result)
			results[i] = result
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (uc *dashboardUseCase) fetchOne(ctx context.Context, cred model.Credential, repo model.RepositoryRef) (*model.RepositoryResult, error) {
	marker, err := uc.release.Resolve(ctx, cred, repo)
	if err != nil {
		return nil, err
	}
	if marker == nil {
		return model.NewNoReleaseResult(repo, uc.now()), nil
	}

	delta, err := uc.delta.Fetch(ctx, cred, repo, *marker)
	if err != nil {
		return nil, err
	}
	return delta.Result(repo, *marker, uc.now()), nil
}

// recoverResult serves the cached entry of repo, or an error result when there is none
func (uc *dashboardUseCase) recoverResult(ctx context.Context, repo model.RepositoryRef, err error) *model.RepositoryResult {
	if cached, ok := uc.cache.Get(ctx, repo); ok {
		ctxlog.From(ctx).Info("Serving cached result after failure",
			"repo", repo.Key(),
			"error", err,
		)
		return cached
	}

	kind := model.KindOf(err)
	ctxlog.From(ctx).Warn("Repository unavailable",
		"repo", repo.Key(),
		"kind", kind,
		"error", err,
	)
	return model.NewErrorResult(repo, kind, model.UserMessage(kind), model.StatusCodeOf(err), uc.now())
}

func (uc *dashboardUseCase) recoverAll(ctx context.Context, repos []model.RepositoryRef, err error) []*model.RepositoryResult {
	results := make([]*model.RepositoryResult, len(repos))
	for i, repo := range repos {
		results[i] = uc.recoverResult(ctx, repo, err)
	}
	return results
}

// fallbackAll is used when the orchestration fails before producing results.
// Uncached repositories only tell rate limiting apart from other failures.
func (uc *dashboardUseCase) fallbackAll(ctx context.Context, repos []model.RepositoryRef, err error) []*model.RepositoryResult {
	kind := model.ErrorKindUpstream
	if goerr.HasTag(err, model.ErrTagRateLimit) || model.IsRateLimitMessage(err.Error()) {
		kind = model.ErrorKindRateLimit
	}
	code := model.StatusCodeOf(err)

	results := make([]*model.RepositoryResult, len(repos))
	for i, repo := range repos {
		if cached, ok := uc.cache.Get(ctx, repo); ok {
			results[i] = cached
			continue
		}
		results[i] = model.NewErrorResult(repo, kind, model.UserMessage(kind), code, uc.now())
	}
	return results
}
