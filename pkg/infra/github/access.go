package github

import (
	"context"

	"github.com/google/go-github/v75/github"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// CurrentUser returns the user that owns cred
func (c *Client) CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	user, _, err := c.rest(ctx, cred).Users.Get(ctx, "")
	if err != nil {
		return nil, wrapError(err, "failed to get authenticated user", model.RepositoryRef{})
	}

	name := user.GetName()
	if name == "" {
		name = user.GetLogin()
	}

	return &model.Identity{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		Name:      name,
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// IsOrgMember checks membership of login in org. A 404 means not a member.
func (c *Client) IsOrgMember(ctx context.Context, cred model.Credential, org, login string) (bool, error) {
	member, _, err := c.rest(ctx, cred).Organizations.IsMember(ctx, org, login)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, wrapError(err, "failed to check organization membership", model.RepositoryRef{Owner: org})
	}
	return member, nil
}

// ListUserOrgs returns the logins of organizations the credential's user belongs to
func (c *Client) ListUserOrgs(ctx context.Context, cred model.Credential) ([]string, error) {
	orgs, _, err := c.rest(ctx, cred).Organizations.List(ctx, "", &github.ListOptions{PerPage: maxPerPage})
	if err != nil {
		return nil, wrapError(err, "failed to list user organizations", model.RepositoryRef{})
	}

	logins := make([]string, 0, len(orgs))
	for _, org := range orgs {
		logins = append(logins, org.GetLogin())
	}
	return logins, nil
}

// CanListPrivateOrgRepos reports whether cred sees at least one private
// repository of org. Non-members get 200 with an empty list.
func (c *Client) CanListPrivateOrgRepos(ctx context.Context, cred model.Credential, org string) (bool, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "private",
		ListOptions: github.ListOptions{PerPage: 1},
	}
	repos, _, err := c.rest(ctx, cred).Repositories.ListByOrg(ctx, org, opts)
	if err != nil {
		wrapped := wrapError(err, "failed to list private organization repositories", model.RepositoryRef{Owner: org})
		switch model.KindOf(wrapped) {
		case model.ErrorKindForbidden, model.ErrorKindNotFound:
			return false, nil
		}
		return false, wrapped
	}
	return len(repos) > 0, nil
}
