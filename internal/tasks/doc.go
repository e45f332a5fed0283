// package tasks implements the playlist transfer pipeline.
//
// A transfer moves through resolve, extract, match, and build stages.
// ResolvePlaylistURL maps a pasted URL to its platform and identifier,
// the source catalog is paged to completion, MatchResolver resolves each
// track against the destination catalog over a bounded worker pool, and
// PlaylistBuilder writes the matched tracks to a new playlist in source
// order. TransferEngine owns the stage sequencing, the per-identity quota
// check, and the report handed back to callers.
package tasks
