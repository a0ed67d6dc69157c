package github

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// wrapError classifies err returned by go-github and wraps it with the
// matching goerr tag and the originating status code
func wrapError(err error, msg string, repo model.RepositoryRef) error {
	status := &model.StatusError{Message: err.Error(), Err: err}
	tag := goerr.T(model.ErrTagUpstream)

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr):
		status.Code = responseCode(rateErr.Response, http.StatusForbidden)
		status.Message = rateErr.Message
		tag = goerr.T(model.ErrTagRateLimit)

	case errors.As(err, &abuseErr):
		status.Code = responseCode(abuseErr.Response, http.StatusForbidden)
		status.Message = abuseErr.Message
		tag = goerr.T(model.ErrTagRateLimit)

	case errors.As(err, &respErr):
		status.Code = responseCode(respErr.Response, 0)
		status.Message = respErr.Message
		tag = model.TagForStatus(status.Code, status.Message)
	}

	return goerr.Wrap(status, msg,
		tag,
		goerr.V("repo", repo.Key()),
		goerr.V("status_code", status.Code),
	)
}

func responseCode(resp *http.Response, fallback int) int {
	if resp == nil {
		return fallback
	}
	return resp.StatusCode
}

// isNotFound reports whether err is a 404 from go-github
func isNotFound(err error) bool {
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}
