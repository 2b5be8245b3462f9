package filter

import (
	"context"
	"fmt"
	"strings"
)

// AssetChecker reports whether the asset backing a piece of content is
// available, either in the local cache or in the asset store.
type AssetChecker interface {
	Available(ctx context.Context, community, id string) (bool, error)
}

// Result of running the static eligibility checks for one observation.
// Permanent rejections are never reconsidered (a banned title stays banned);
// non-permanent ones are re-checked on later observations.
type Result struct {
	Rejected  bool
	Permanent bool
	Reason    string
}

type Filterer struct {
	assets AssetChecker
}

func NewFilterer(assets AssetChecker) *Filterer {
	return &Filterer{assets: assets}
}

func (f *Filterer) Run(ctx context.Context, community, id, title string, bannedTerms []string) (Result, error) {
	if term, ok := matchBannedTerm(title, bannedTerms); ok {
		return Result{
			Rejected:  true,
			Permanent: true,
			Reason:    fmt.Sprintf("title contains banned term '%s'", term),
		}, nil
	}

	available, err := f.assets.Available(ctx, community, id)
	if err != nil {
		return Result{}, fmt.Errorf("failed to check asset availability: %w", err)
	}
	if !available {
		return Result{
			Rejected:  true,
			Permanent: false,
			Reason:    "asset not yet available",
		}, nil
	}

	return Result{}, nil
}

// matchBannedTerm splits the title on whitespace and compares each token,
// case-insensitively, against the banned set. Exact token matches only:
// "python" bans "I love Python" but not "pythonista lives here".
func matchBannedTerm(title string, bannedTerms []string) (string, bool) {
	if len(bannedTerms) == 0 {
		return "", false
	}

	banned := make(map[string]struct{}, len(bannedTerms))
	for _, term := range bannedTerms {
		banned[strings.ToLower(term)] = struct{}{}
	}

	for _, token := range strings.Fields(title) {
		if _, ok := banned[strings.ToLower(token)]; ok {
			return strings.ToLower(token), true
		}
	}

	return "", false
}
