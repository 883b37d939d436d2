//go:build !sqlite
// +build !sqlite

package store

import (
	"errors"

	logx "groupcast/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite store not built: build with -tags sqlite")
}
