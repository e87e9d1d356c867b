// Package dbctx carries a request-scoped context plus an optional open
// transaction, so repos can be called either inside or outside a
// transaction without two copies of every method.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// A nil Tx means "use the repo's own *gorm.DB", i.e. no transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx}
}

// Resolve returns tx scoped to ctx if set, otherwise db scoped to ctx.
func (c Context) Resolve(db *gorm.DB) *gorm.DB {
	if c.Tx != nil {
		return c.Tx.WithContext(c.Ctx)
	}
	return db.WithContext(c.Ctx)
}
