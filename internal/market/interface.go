package market

import (
	"context"

	"github.com/GoPolymarket/polysession/internal/clob"
)

// BookFetcher is the REST source used until the stream has a snapshot.
type BookFetcher interface {
	GetBook(ctx context.Context, tokenID string) (*clob.Book, error)
}
