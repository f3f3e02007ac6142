package persist

import (
	"context"

	"github.com/mahfuz-dev/clipfeed/backend/internal/ledger"
	"github.com/mahfuz-dev/clipfeed/backend/internal/schema"
	"github.com/mahfuz-dev/clipfeed/backend/internal/store"
)

// RelationState fetches the confirmed remote truth for one (actor, target)
// relation: the target's total count plus the id of the actor's own
// document, when one exists. An empty actor skips the "mine" lookup.
func (a *Adapter) RelationState(ctx context.Context, kind schema.Kind, actor, target string) (docID string, count int64, err error) {
	collection, err := a.resolver.Collection(kind)
	if err != nil {
		return "", 0, err
	}
	m, err := a.resolver.Resolve(ctx, kind)
	if err != nil {
		return "", 0, err
	}

	roles, ok := relationRoles[kind]
	if !ok {
		return "", 0, store.NewError(store.KindPersistenceFailed, "relation_state", nil)
	}
	targetField, ok := m.Field(roles[1])
	if !ok {
		targetField = schema.Candidates(roles[1])[0]
	}
	actorField, ok := m.Field(roles[0])
	if !ok {
		actorField = schema.Candidates(roles[0])[0]
	}

	totalRes, err := a.store.Query(ctx, collection, store.QueryOptions{
		Filters: []store.Filter{{Field: targetField, Value: target}},
		Limit:   1,
	})
	if err != nil {
		return "", 0, err
	}
	count = totalRes.Total

	if actor == "" {
		return "", count, nil
	}

	// The deterministic id means we could guess, but the confirmed document
	// may predate this id scheme; query instead.
	mineRes, err := a.store.Query(ctx, collection, store.QueryOptions{
		Filters: []store.Filter{
			{Field: targetField, Value: target},
			{Field: actorField, Value: actor},
		},
		Limit: 1,
	})
	if err != nil {
		return "", count, err
	}
	if len(mineRes.Documents) > 0 {
		docID = mineRes.Documents[0].ID
	}
	return docID, count, nil
}

// SeedLedger loads the confirmed state for (actor, target) into the ledger.
func (a *Adapter) SeedLedger(ctx context.Context, l *ledger.Ledger, kind schema.Kind, actor, target string) error {
	docID, count, err := a.RelationState(ctx, kind, actor, target)
	if err != nil {
		return err
	}
	l.Seed(kind, target, docID != "", docID, count)
	return nil
}

// Posts returns the newest page of the post collection.
func (a *Adapter) Posts(ctx context.Context, limit int64) ([]store.Document, error) {
	collection, err := a.resolver.Collection(schema.KindPost)
	if err != nil {
		return nil, err
	}
	m, err := a.resolver.Resolve(ctx, schema.KindPost)
	if err != nil {
		return nil, err
	}
	orderBy, ok := m.Field(schema.RoleCreatedAt)
	if !ok {
		orderBy = schema.Candidates(schema.RoleCreatedAt)[0]
	}
	res, err := a.store.Query(ctx, collection, store.QueryOptions{
		OrderBy:    orderBy,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// PostsByAuthor queries the post collection for one author, trying every
// author-field spelling and merging the results. Deployments differ on which
// spelling their posts carry, and some carry a mix.
func (a *Adapter) PostsByAuthor(ctx context.Context, authorID string, limit int64) ([]store.Document, error) {
	collection, err := a.resolver.Collection(schema.KindPost)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var merged []store.Document
	for _, field := range schema.Candidates(schema.RoleAuthor) {
		res, err := a.store.Query(ctx, collection, store.QueryOptions{
			Filters: []store.Filter{{Field: field, Value: authorID}},
			Limit:   limit,
		})
		if err != nil {
			// A spelling the collection does not declare; try the next one.
			continue
		}
		for _, doc := range res.Documents {
			if !seen[doc.ID] {
				seen[doc.ID] = true
				merged = append(merged, doc)
			}
		}
	}
	return merged, nil
}

// FollowingIDs lists the ids the given user follows.
func (a *Adapter) FollowingIDs(ctx context.Context, followerID string) ([]string, error) {
	collection, err := a.resolver.Collection(schema.KindFollow)
	if err != nil {
		return nil, err
	}
	m, err := a.resolver.Resolve(ctx, schema.KindFollow)
	if err != nil {
		return nil, err
	}
	followerField, ok := m.Field(schema.RoleFollower)
	if !ok {
		followerField = schema.Candidates(schema.RoleFollower)[0]
	}

	res, err := a.store.Query(ctx, collection, store.QueryOptions{
		Filters: []store.Filter{{Field: followerField, Value: followerID}},
		Limit:   100,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Documents))
	for _, doc := range res.Documents {
		if v, ok := schema.FirstValue(doc.Fields, schema.RoleFollowee); ok {
			ids = append(ids, v)
		}
	}
	return ids, nil
}

// Comments returns the newest comments for a post plus the total count.
func (a *Adapter) Comments(ctx context.Context, postID string, limit int64) ([]store.Document, int64, error) {
	collection, err := a.resolver.Collection(schema.KindComment)
	if err != nil {
		return nil, 0, err
	}
	m, err := a.resolver.Resolve(ctx, schema.KindComment)
	if err != nil {
		return nil, 0, err
	}
	postField, ok := m.Field(schema.RolePostRef)
	if !ok {
		postField = schema.Candidates(schema.RolePostRef)[0]
	}
	orderBy, ok := m.Field(schema.RoleCreatedAt)
	if !ok {
		orderBy = schema.Candidates(schema.RoleCreatedAt)[0]
	}

	res, err := a.store.Query(ctx, collection, store.QueryOptions{
		Filters:    []store.Filter{{Field: postField, Value: postID}},
		OrderBy:    orderBy,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Documents, res.Total, nil
}
