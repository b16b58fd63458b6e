package scope

import (
	"context"

	"github.com/madcok-co/relay/core/pkg/contracts"
)

type txKey struct{}

// WithTx attaches the active transaction handle to ctx so stages deep
// in a chain can join it.
func WithTx(ctx context.Context, tx contracts.Database) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the active transaction, nil outside one.
func TxFromContext(ctx context.Context) contracts.Database {
	tx, _ := ctx.Value(txKey{}).(contracts.Database)
	return tx
}
