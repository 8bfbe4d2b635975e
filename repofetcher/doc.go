// Package repofetcher implements association.Fetcher over go-repository-bun
// repositories.
//
//	f := repofetcher.New()
//	repofetcher.Register[*Comment](f, "comment", commentRepo)
//	repofetcher.RegisterOwner[*Post](f, "post", postRepo)
//
//	post := association.NewOwner(postTable, f, id)
//
// Registering the owner repository makes every Fetch and Count check the owner
// row first. A deleted owner is reported as association.ErrOwnerNotFound even
// when its child rows remain.
package repofetcher
