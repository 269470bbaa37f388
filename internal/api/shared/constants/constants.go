package constants

import "github.com/groupwatch/group-indexer/internal/api/shared/types"

const (
	MAX_PAGE_SIZE         = 100
	MAX_PAGE              = 1_000_000
	DEFAULT_PAGE          = 1
	DEFAULT_PER_PAGE      = 20
	DEFAULT_RECENT_LIMIT  = 10
	DEFAULT_HISTORY_LIMIT = 20
	DEFAULT_SEARCH_LIMIT  = 20
	DEFAULT_SORT_FIELD    = types.SortLastSeenGroup
	DEFAULT_SORT_ORDER    = types.OrderDesc
)
