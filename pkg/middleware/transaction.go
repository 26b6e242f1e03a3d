package middleware

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ereojs/ereo/pkg/common"
)

const txKey = "ereo.tx"

// Transactor wraps mutation handlers in database transactions. The
// dispatcher calls Begin before the handler and Resolve after it, so a
// handler error rolls the transaction back and a successful return
// commits it. Pipelines themselves cannot observe handler completion,
// which is why this lives at the dispatch boundary rather than as a Step.
type Transactor struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactor creates a Transactor over the given database handle.
func NewTransactor(db *gorm.DB, logger *zap.Logger) *Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{db: db, logger: logger}
}

// Tx is one in-flight transaction, resolved by the dispatcher after the
// handler returns.
type Tx struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Begin starts a transaction and returns a context carrying it.
func (t *Transactor) Begin(ctx *common.Context) (*common.Context, *Tx, error) {
	tx := t.db.WithContext(ctx.StdContext()).Begin()
	if tx.Error != nil {
		t.logger.Error("failed to begin transaction",
			zap.Error(tx.Error),
			zap.String("trace_id", ctx.TraceID()),
		)
		return ctx, nil, tx.Error
	}
	return ctx.WithValue(txKey, tx), &Tx{db: tx, logger: t.logger}, nil
}

// Resolve commits the transaction when callErr is nil and rolls it back
// otherwise. A commit failure is returned as a structured internal error
// so the dispatcher never reports a success the database did not see.
func (x *Tx) Resolve(callErr error) error {
	if callErr != nil {
		if err := x.db.Rollback().Error; err != nil {
			x.logger.Error("failed to roll back transaction", zap.Error(err))
		}
		return nil
	}
	if err := x.db.Commit().Error; err != nil {
		x.logger.Error("failed to commit transaction", zap.Error(err))
		return common.NewError(common.CodeInternal, "internal server error")
	}
	return nil
}

// TxFromContext returns the transaction attached by Transactor.Begin.
func TxFromContext(ctx *common.Context) (*gorm.DB, bool) {
	v, ok := ctx.Value(txKey)
	if !ok {
		return nil, false
	}
	tx, ok := v.(*gorm.DB)
	return tx, ok
}
