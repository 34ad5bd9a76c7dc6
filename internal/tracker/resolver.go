package tracker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
)

// Resolution is the outcome of reference resolution for one message.
type Resolution struct {
	// ExternalIDs are the References tokens that are not synthetic
	// thread markers, kept verbatim for comment correlation.
	ExternalIDs []string

	// MatchedTask is the task recovered from a synthetic thread
	// marker, when one resolved. A marker match is authoritative over
	// comment correlation.
	MatchedTask *model.Task
}

// Resolver parses References header chains, separating foreign message
// ids from synthetic thread markers issued by our own outbound
// notifications.
type Resolver struct {
	store  store.Store
	marker *regexp.Regexp
}

// NewResolver creates a Resolver recognizing markers for the given
// system domain.
func NewResolver(st store.Store, domain string) *Resolver {
	return &Resolver{
		store: st,
		marker: regexp.MustCompile(
			`^<?thread-([0-9]+)@` + regexp.QuoteMeta(domain) + `>?$`,
		),
	}
}

// Resolve walks the References tokens in header order. Marker tokens
// are looked up as task ids scoped to the list; when several markers
// resolve, the last one encountered wins. All other tokens are retained
// verbatim as external id candidates.
func (r *Resolver) Resolve(
	ctx context.Context,
	listID int64,
	references []string,
) (Resolution, error) {
	var res Resolution

	for _, token := range references {
		m := r.marker.FindStringSubmatch(token)
		if m == nil {
			res.ExternalIDs = append(res.ExternalIDs, token)
			continue
		}

		taskID, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			// Unreachable given the pattern; treat as foreign.
			res.ExternalIDs = append(res.ExternalIDs, token)
			continue
		}

		task, err := r.store.GetListTask(ctx, listID, taskID)
		if store.IsNotFound(err) {
			// A marker for a deleted or foreign-list task resolves to
			// nothing; the message may still correlate by comments.
			continue
		}
		if err != nil {
			return Resolution{}, fmt.Errorf("resolving thread marker %s: %w", token, err)
		}

		res.MatchedTask = task
	}

	return res, nil
}
