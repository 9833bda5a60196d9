// Package pagination discovers the complete message listing of an MJP feed.
//
// The listing API reports the total number of messages alongside each page.
// The lister probes page 0 with a small page size to learn the total, then
// requests a single page large enough to hold every message:
//
//	lister := pagination.NewLister(apiClient, pagination.DefaultConfig())
//	records := lister.FetchAll(ctx, pagination.Feed{Name: "outgoing", URL: outgoingURL})
//
// The lister:
//   - Requests ascending order by creation time, which fixes processing order
//   - Returns an empty listing without a second request when total is 0
//   - Rounds the full page size up to the probe page size granularity
//   - Never retries; any failure is logged and yields an empty listing
package pagination
