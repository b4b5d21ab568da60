package github

import (
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/kebairia/ghbackup/internal/backup"
)

func toDescriptor(repo *gh.Repository) backup.RepoDescriptor {
	return backup.RepoDescriptor{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		URL:           repo.GetHTMLURL(),
		CloneURL:      repo.GetCloneURL(),
		SSHURL:        repo.GetSSHURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
		SizeKB:        repo.GetSize(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		Watchers:      repo.GetWatchersCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		Topics:        repo.Topics,
		Private:       repo.GetPrivate(),
		Archived:      repo.GetArchived(),
		CreatedAt:     repo.GetCreatedAt().Time,
		UpdatedAt:     repo.GetUpdatedAt().Time,
		PushedAt:      repo.GetPushedAt().Time,
	}
}

func toIssue(issue *gh.Issue) backup.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}
	assignees := make([]string, 0, len(issue.Assignees))
	for _, assignee := range issue.Assignees {
		assignees = append(assignees, assignee.GetLogin())
	}
	return backup.Issue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		User:      issue.GetUser().GetLogin(),
		Labels:    labels,
		Assignees: assignees,
		Comments:  issue.GetComments(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
		ClosedAt:  timestampPtr(issue.ClosedAt),
	}
}

func toPullRequest(pr *gh.PullRequest) backup.PullRequest {
	return backup.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		State:     pr.GetState(),
		User:      pr.GetUser().GetLogin(),
		Head:      pr.GetHead().GetRef(),
		Base:      pr.GetBase().GetRef(),
		Merged:    pr.GetMerged(),
		Comments:  pr.GetComments(),
		Commits:   pr.GetCommits(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
		ClosedAt:  timestampPtr(pr.ClosedAt),
		MergedAt:  timestampPtr(pr.MergedAt),
	}
}

func toRelease(release *gh.RepositoryRelease) backup.Release {
	assets := make([]backup.ReleaseAsset, 0, len(release.Assets))
	for _, asset := range release.Assets {
		assets = append(assets, backup.ReleaseAsset{
			Name:          asset.GetName(),
			SizeBytes:     int64(asset.GetSize()),
			DownloadCount: asset.GetDownloadCount(),
			URL:           asset.GetBrowserDownloadURL(),
		})
	}
	return backup.Release{
		TagName:     release.GetTagName(),
		Name:        release.GetName(),
		Body:        release.GetBody(),
		Draft:       release.GetDraft(),
		Prerelease:  release.GetPrerelease(),
		Author:      release.GetAuthor().GetLogin(),
		CreatedAt:   release.GetCreatedAt().Time,
		PublishedAt: timestampPtr(release.PublishedAt),
		Assets:      assets,
	}
}

func timestampPtr(ts *gh.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
