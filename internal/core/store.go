package core

import "context"

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Inserter adds one record to a category and returns its store-assigned id.
type Inserter interface {
	Insert(ctx context.Context, categoryID string, r Record) (string, error)
}

// Store is the document store the catalog is built on. Implementations live
// in internal/store.
//
// Subscribe delivers the category's records ordered by ascending CreatedAt:
// once immediately, then after every insert or delete in that category.
// Callbacks for one subscription run sequentially on a dedicated goroutine
// and never block the store's writers. A feed failure is reported once
// through onError, after which the feed delivers nothing more.
type Store interface {
	Inserter
	Subscribe(categoryID string, onChange func([]Record), onError func(error)) (Unsubscribe, error)
	Delete(ctx context.Context, categoryID, id string) error
}
