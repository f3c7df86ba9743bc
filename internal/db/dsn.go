package db

import (
	"fmt"
	"net/url"
)

func createDSN(
	dbPath string, isReadOnly bool, disableOptimizations bool,
) string {
	qp := url.Values{}
	qp.Add("_foreign_keys", "true")
	qp.Add("_busy_timeout", "5000")

	if isReadOnly {
		qp.Add("_query_only", "true")
	} else {
		// The file must already exist, creating it is the job of the
		// schema bootstrap.
		qp.Add("mode", "rw")
	}

	if !disableOptimizations {
		qp.Add("_cache_size", "10000")
		if !isReadOnly {
			qp.Add("_journal_mode", "WAL")
			qp.Add("_synchronous", "NORMAL")
		}
	}

	return fmt.Sprintf("file:%s?%s", dbPath, qp.Encode())
}
