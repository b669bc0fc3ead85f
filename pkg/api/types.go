package api

// CustomQueryRequest selects one of the predefined diagnostic queries.
type CustomQueryRequest struct {
	QueryType string `json:"query_type"`
	Days      int    `json:"days,omitempty"`
}
